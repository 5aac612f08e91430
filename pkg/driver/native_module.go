package driver

import (
	"fmt"
	"io"
	"math/big"
	"reflect"
	"sort"
	"strings"
	"sync"

	"siskin/pkg/modules"
	"siskin/pkg/vm"
)

// ModuleBuilder collects the exports of a native module. It works like a
// realm initializer: values are created directly in the importing realm.
type ModuleBuilder struct {
	realm  *vm.Realm
	names  []string
	values map[string]vm.Value
	err    error
}

// NamespaceBuilder fills a plain object exported by a native module.
type NamespaceBuilder struct {
	realm  *vm.Realm
	object *vm.Object
	err    error
}

// NativeModule is a module declared in Go. The builder runs once per realm
// that imports it.
type NativeModule struct {
	name    string
	builder func(*ModuleBuilder)
}

// NativeModuleResolver resolves the names of native modules. It runs before
// any file resolver so that "siskin:..." names never reach the disk.
type NativeModuleResolver struct {
	mutex    sync.RWMutex
	modules  map[string]*NativeModule
	priority int
}

var (
	valueType  = reflect.TypeOf((*vm.Value)(nil)).Elem()
	objectType = reflect.TypeOf((*vm.Object)(nil))
	agentType  = reflect.TypeOf((*vm.Agent)(nil))
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	bigIntType = reflect.TypeOf((*big.Int)(nil))
)

func newModuleBuilder(realm *vm.Realm) *ModuleBuilder {
	return &ModuleBuilder{realm: realm, values: make(map[string]vm.Value)}
}

// Realm returns the realm the module is built for.
func (m *ModuleBuilder) Realm() *vm.Realm {
	return m.realm
}

// Value exports a language value as is.
func (m *ModuleBuilder) Value(name string, v vm.Value) *ModuleBuilder {
	if _, exists := m.values[name]; !exists {
		m.names = append(m.names, name)
	}
	m.values[name] = v
	return m
}

// Const exports a Go value converted with the reflection rules of
// GoFunction: numbers, strings, bools, slices, string-keyed maps, structs
// and funcs.
func (m *ModuleBuilder) Const(name string, value any) *ModuleBuilder {
	v, err := goToValue(m.realm, value)
	if err != nil {
		m.fail(fmt.Errorf("export %s: %w", name, err))
		return m
	}
	return m.Value(name, v)
}

// Function exports a built-in function.
func (m *ModuleBuilder) Function(name string, length int, fn vm.NativeFunction) *ModuleBuilder {
	return m.Value(name, vm.NewNativeFunction(m.realm, name, length, fn))
}

// GoFunction exports an ordinary Go func. Arguments are converted to the
// parameter types; a trailing error result becomes a thrown Error.
func (m *ModuleBuilder) GoFunction(name string, fn any) *ModuleBuilder {
	f, err := wrapGoFunction(m.realm, name, fn)
	if err != nil {
		m.fail(fmt.Errorf("export %s: %w", name, err))
		return m
	}
	return m.Value(name, f)
}

// Namespace exports a plain object filled by build.
func (m *ModuleBuilder) Namespace(name string, build func(*NamespaceBuilder)) *ModuleBuilder {
	ns := &NamespaceBuilder{realm: m.realm, object: vm.OrdinaryObjectCreate(m.realm.Intrinsics.ObjectPrototype)}
	build(ns)
	if ns.err != nil {
		m.fail(fmt.Errorf("namespace %s: %w", name, ns.err))
		return m
	}
	return m.Value(name, ns.object)
}

// Default sets the default export.
func (m *ModuleBuilder) Default(value any) *ModuleBuilder {
	return m.Const("default", value)
}

func (m *ModuleBuilder) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}

// Value sets a property to a language value.
func (n *NamespaceBuilder) Value(name string, v vm.Value) *NamespaceBuilder {
	n.object.Put(vm.NewString(name), v, vm.AttrAll)
	return n
}

// Const sets a property to a converted Go value.
func (n *NamespaceBuilder) Const(name string, value any) *NamespaceBuilder {
	v, err := goToValue(n.realm, value)
	if err != nil {
		if n.err == nil {
			n.err = fmt.Errorf("%s: %w", name, err)
		}
		return n
	}
	return n.Value(name, v)
}

// Function sets a method.
func (n *NamespaceBuilder) Function(name string, length int, fn vm.NativeFunction) *NamespaceBuilder {
	return n.Value(name, vm.NewNativeFunction(n.realm, name, length, fn))
}

// GoFunction sets a method backed by a Go func.
func (n *NamespaceBuilder) GoFunction(name string, fn any) *NamespaceBuilder {
	f, err := wrapGoFunction(n.realm, name, fn)
	if err != nil {
		if n.err == nil {
			n.err = fmt.Errorf("%s: %w", name, err)
		}
		return n
	}
	return n.Value(name, f)
}

// Name returns the specifier the module is imported by.
func (nm *NativeModule) Name() string {
	return nm.name
}

// Instantiate runs the builder for realm and wraps the exports in a
// synthetic module. It must be called with realm's context running.
func (nm *NativeModule) Instantiate(realm *vm.Realm) (*vm.SyntheticModule, error) {
	b := newModuleBuilder(realm)
	nm.builder(b)
	if b.err != nil {
		return nil, fmt.Errorf("native module %s: %w", nm.name, b.err)
	}
	values := b.values
	return realm.NewSyntheticModule(nm.name, b.names, func(m *vm.SyntheticModule) error {
		for name, v := range values {
			if err := m.SetExport(name, v); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

// NewNativeModuleResolver creates an empty resolver.
func NewNativeModuleResolver() *NativeModuleResolver {
	return &NativeModuleResolver{
		modules:  make(map[string]*NativeModule),
		priority: 0,
	}
}

// Declare registers a native module under name.
func (r *NativeModuleResolver) Declare(name string, builder func(*ModuleBuilder)) *NativeModule {
	nm := &NativeModule{name: name, builder: builder}
	r.mutex.Lock()
	r.modules[name] = nm
	r.mutex.Unlock()
	return nm
}

// Lookup returns the module declared under name.
func (r *NativeModuleResolver) Lookup(name string) (*NativeModule, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	nm, ok := r.modules[name]
	return nm, ok
}

// Names lists the declared modules.
func (r *NativeModuleResolver) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *NativeModuleResolver) Name() string {
	return "Native"
}

func (r *NativeModuleResolver) CanResolve(specifier string) bool {
	_, ok := r.Lookup(specifier)
	return ok
}

func (r *NativeModuleResolver) Resolve(specifier string, fromPath string) (*modules.ResolvedModule, error) {
	nm, ok := r.Lookup(specifier)
	if !ok {
		return nil, fmt.Errorf("no native module %s", specifier)
	}
	return &modules.ResolvedModule{
		Specifier:    specifier,
		ResolvedPath: specifier,
		Kind:         modules.SourceNative,
		Source:       io.NopCloser(strings.NewReader("")),
		Resolver:     r.Name(),
		Native:       nm,
	}, nil
}

func (r *NativeModuleResolver) Priority() int {
	return r.priority
}

// SetPriority changes the resolver priority.
func (r *NativeModuleResolver) SetPriority(priority int) {
	r.priority = priority
}

// --- Go <-> language value conversion ---

// goToValue converts a Go value into a language value of realm.
func goToValue(realm *vm.Realm, value any) (vm.Value, error) {
	if value == nil {
		return vm.Null, nil
	}
	if v, ok := value.(vm.Value); ok {
		return v, nil
	}
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return vm.Null, nil
		}
		return vm.NewBigInt(new(big.Int).Set(v)), nil
	case error:
		return errorObject(realm.Agent(), v), nil
	}
	return reflectToValue(realm, reflect.ValueOf(value))
}

func reflectToValue(realm *vm.Realm, rv reflect.Value) (vm.Value, error) {
	a := realm.Agent()
	if !rv.IsValid() {
		return vm.Null, nil
	}
	if k := rv.Kind(); (k == reflect.Pointer || k == reflect.Interface) && rv.IsNil() {
		return vm.Null, nil
	}
	if rv.Type().Implements(valueType) && rv.Kind() != reflect.Interface {
		return rv.Interface().(vm.Value), nil
	}
	switch rv.Kind() {
	case reflect.Bool:
		return vm.Boolean(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.Number(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return vm.Number(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return vm.Number(rv.Float()), nil
	case reflect.String:
		return vm.NewString(rv.String()), nil
	case reflect.Interface, reflect.Pointer:
		if rv.Type() == bigIntType {
			return goToValue(realm, rv.Interface())
		}
		return reflectToValue(realm, rv.Elem())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return vm.CreateArrayFromList(a, nil), nil
		}
		items := make([]vm.Value, rv.Len())
		for i := range items {
			item, err := reflectToValue(realm, rv.Index(i))
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = item
		}
		return vm.CreateArrayFromList(a, items), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		o := vm.OrdinaryObjectCreate(realm.Intrinsics.ObjectPrototype)
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			item, err := reflectToValue(realm, rv.MapIndex(k))
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", k.String(), err)
			}
			o.Put(vm.NewString(k.String()), item, vm.AttrAll)
		}
		return o, nil
	case reflect.Struct:
		o := vm.OrdinaryObjectCreate(realm.Intrinsics.ObjectPrototype)
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			name, ok := fieldName(field)
			if !ok {
				continue
			}
			item, err := reflectToValue(realm, rv.Field(i))
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			o.Put(vm.NewString(name), item, vm.AttrAll)
		}
		return o, nil
	case reflect.Func:
		if rv.IsNil() {
			return vm.Null, nil
		}
		return wrapGoFunction(realm, "", rv.Interface())
	}
	return nil, fmt.Errorf("unsupported Go type %s", rv.Type())
}

// fieldName picks the property name of an exported struct field, honouring
// a json tag.
func fieldName(field reflect.StructField) (string, bool) {
	if !field.IsExported() {
		return "", false
	}
	if tag, ok := field.Tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return field.Name, true
}

func errorObject(a *vm.Agent, err error) vm.Value {
	return a.ThrowError(err.Error()).Value
}

// valueToGo converts an argument to the Go type t.
func valueToGo(a *vm.Agent, v vm.Value, t reflect.Type) (reflect.Value, *vm.Completion) {
	if v == nil {
		v = vm.Undefined
	}
	switch {
	case t == valueType:
		out := reflect.New(t).Elem()
		out.Set(reflect.ValueOf(v))
		return out, nil
	case t == objectType:
		o, ok := v.(*vm.Object)
		if !ok {
			if vm.IsNullish(v) {
				return reflect.Zero(t), nil
			}
			return reflect.Value{}, a.ThrowTypeError(fmt.Sprintf("%s is not an object", vm.Inspect(v)))
		}
		return reflect.ValueOf(o), nil
	case t == bigIntType:
		b, c := vm.ToBigInt(a, v)
		if c != nil {
			return reflect.Value{}, c
		}
		return reflect.ValueOf(new(big.Int).Set(b.Int)), nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return reflect.ValueOf(vm.ToBoolean(v)).Convert(t), nil
	case reflect.String:
		s, c := vm.ToString(a, v)
		if c != nil {
			return reflect.Value{}, c
		}
		return reflect.ValueOf(s.String()).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, c := vm.ToIntegerOrInfinity(a, v)
		if c != nil {
			return reflect.Value{}, c
		}
		return reflect.ValueOf(int64(n)).Convert(t), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, c := vm.ToIntegerOrInfinity(a, v)
		if c != nil {
			return reflect.Value{}, c
		}
		if n < 0 {
			return reflect.Value{}, a.ThrowRangeError(fmt.Sprintf("%v is not a valid unsigned integer", n))
		}
		return reflect.ValueOf(uint64(n)).Convert(t), nil
	case reflect.Float32, reflect.Float64:
		n, c := vm.ToNumber(a, v)
		if c != nil {
			return reflect.Value{}, c
		}
		return reflect.ValueOf(float64(n)).Convert(t), nil
	case reflect.Slice:
		if vm.IsNullish(v) {
			return reflect.Zero(t), nil
		}
		items, c := vm.CreateListFromArrayLike(a, v)
		if c != nil {
			return reflect.Value{}, c
		}
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			elem, c := valueToGo(a, item, t.Elem())
			if c != nil {
				return reflect.Value{}, c
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			break
		}
		if vm.IsNullish(v) {
			return reflect.Zero(t), nil
		}
		o, c := vm.ToObject(a, v)
		if c != nil {
			return reflect.Value{}, c
		}
		entries, c := vm.EnumerableOwnProperties(a, o, vm.EnumerateEntries)
		if c != nil {
			return reflect.Value{}, c
		}
		out := reflect.MakeMapWithSize(t, len(entries))
		for _, entry := range entries {
			pair := entry.(*vm.Object)
			key, _ := pair.OwnValue(vm.IndexKey(0))
			val, _ := pair.OwnValue(vm.IndexKey(1))
			elem, c := valueToGo(a, val, t.Elem())
			if c != nil {
				return reflect.Value{}, c
			}
			out.SetMapIndex(reflect.ValueOf(key.(vm.String).String()).Convert(t.Key()), elem)
		}
		return out, nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			natural := naturalGo(a, v)
			if natural == nil {
				return reflect.Zero(t), nil
			}
			return reflect.ValueOf(natural), nil
		}
	}
	return reflect.Value{}, a.ThrowTypeError(fmt.Sprintf("cannot convert %s to Go %s", vm.Inspect(v), t))
}

// naturalGo maps a value onto the closest untyped Go value. Objects other
// than arrays stay language values.
func naturalGo(a *vm.Agent, v vm.Value) any {
	switch v := v.(type) {
	case vm.Boolean:
		return bool(v)
	case vm.Number:
		return float64(v)
	case vm.String:
		return v.String()
	case *vm.BigInt:
		return new(big.Int).Set(v.Int)
	case *vm.Object:
		if vm.IsArray(v) {
			items, c := vm.CreateListFromArrayLike(a, v)
			if c != nil {
				return v
			}
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = naturalGo(a, item)
			}
			return out
		}
		return v
	}
	if vm.IsNullish(v) {
		return nil
	}
	return v
}

// wrapGoFunction turns a Go func into a built-in function. A leading
// *vm.Agent parameter receives the calling agent and does not count towards
// the function's length.
func wrapGoFunction(realm *vm.Realm, name string, fn any) (*vm.Object, error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("%T is not a func", fn)
	}
	switch ft.NumOut() {
	case 0, 1:
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("second result of %s must be error", ft)
		}
	default:
		return nil, fmt.Errorf("%s returns too many results", ft)
	}

	first := 0
	if ft.NumIn() > 0 && ft.In(0) == agentType {
		first = 1
	}
	params := ft.NumIn() - first
	length := params
	if ft.IsVariadic() {
		length--
	}

	behavior := func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		in := make([]reflect.Value, 0, ft.NumIn())
		if first == 1 {
			in = append(in, reflect.ValueOf(a))
		}
		for i := first; i < ft.NumIn(); i++ {
			pt := ft.In(i)
			argIdx := i - first
			if ft.IsVariadic() && i == ft.NumIn()-1 {
				rest := reflect.MakeSlice(pt, 0, 0)
				for j := argIdx; j < len(args); j++ {
					elem, c := valueToGo(a, args[j], pt.Elem())
					if c != nil {
						return nil, c
					}
					rest = reflect.Append(rest, elem)
				}
				in = append(in, rest)
				break
			}
			arg, c := valueToGo(a, vm.Arg(args, argIdx), pt)
			if c != nil {
				return nil, c
			}
			in = append(in, arg)
		}

		var out []reflect.Value
		if ft.IsVariadic() {
			out = fv.CallSlice(in)
		} else {
			out = fv.Call(in)
		}
		return goResults(a, realm, ft, out)
	}
	return vm.NewNativeFunction(realm, name, length, behavior), nil
}

func goResults(a *vm.Agent, realm *vm.Realm, ft reflect.Type, out []reflect.Value) (vm.Value, *vm.Completion) {
	if len(out) == 0 {
		return vm.Undefined, nil
	}
	if len(out) == 2 {
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, a.ThrowError(err.Error())
		}
	} else if ft.Out(0) == errorType {
		if err, _ := out[0].Interface().(error); err != nil {
			return nil, a.ThrowError(err.Error())
		}
		return vm.Undefined, nil
	}
	v, err := reflectToValue(realm, out[0])
	if err != nil {
		return nil, a.ThrowTypeError(err.Error())
	}
	return v, nil
}
