package vm

// Property is an own property slot. Getter and Setter are nil when the
// accessor half is undefined.
type Property struct {
	Value        Value
	Getter       *Object
	Setter       *Object
	Accessor     bool
	Writable     bool
	Enumerable   bool
	Configurable bool
}

// Attr is a set of property attributes used when defining properties from Go.
type Attr uint8

const (
	AttrWritable Attr = 1 << iota
	AttrEnumerable
	AttrConfigurable

	AttrNone    Attr = 0
	AttrDefault      = AttrWritable | AttrConfigurable // built-in methods
	AttrAll          = AttrWritable | AttrEnumerable | AttrConfigurable
)

// DescriptorField records which fields of a PropertyDescriptor are present.
type DescriptorField uint8

const (
	HasValue DescriptorField = 1 << iota
	HasWritable
	HasGet
	HasSet
	HasEnumerable
	HasConfigurable
)

// PropertyDescriptor is a possibly partial property description. Get and
// Set hold Undefined or a callable object when present.
type PropertyDescriptor struct {
	Value        Value
	Get          Value
	Set          Value
	Writable     bool
	Enumerable   bool
	Configurable bool
	Has          DescriptorField
}

// DataDescriptor builds a complete data descriptor.
func DataDescriptor(v Value, attrs Attr) PropertyDescriptor {
	return PropertyDescriptor{
		Value:        v,
		Writable:     attrs&AttrWritable != 0,
		Enumerable:   attrs&AttrEnumerable != 0,
		Configurable: attrs&AttrConfigurable != 0,
		Has:          HasValue | HasWritable | HasEnumerable | HasConfigurable,
	}
}

// AccessorDescriptor builds a complete accessor descriptor. Nil functions
// are undefined.
func AccessorDescriptor(get, set *Object, attrs Attr) PropertyDescriptor {
	d := PropertyDescriptor{
		Get:          Undefined,
		Set:          Undefined,
		Enumerable:   attrs&AttrEnumerable != 0,
		Configurable: attrs&AttrConfigurable != 0,
		Has:          HasGet | HasSet | HasEnumerable | HasConfigurable,
	}
	if get != nil {
		d.Get = get
	}
	if set != nil {
		d.Set = set
	}
	return d
}

func (d *PropertyDescriptor) has(f DescriptorField) bool {
	return d.Has&f != 0
}

// IsAccessorDescriptor reports whether Get or Set is present.
func (d *PropertyDescriptor) IsAccessorDescriptor() bool {
	return d != nil && d.Has&(HasGet|HasSet) != 0
}

// IsDataDescriptor reports whether Value or Writable is present.
func (d *PropertyDescriptor) IsDataDescriptor() bool {
	return d != nil && d.Has&(HasValue|HasWritable) != 0
}

// IsGenericDescriptor reports a descriptor that is neither data nor accessor.
func (d *PropertyDescriptor) IsGenericDescriptor() bool {
	return d != nil && !d.IsAccessorDescriptor() && !d.IsDataDescriptor()
}

// Complete fills absent fields with their defaults.
func (d *PropertyDescriptor) Complete() {
	if d.IsGenericDescriptor() || d.IsDataDescriptor() {
		if !d.has(HasValue) {
			d.Value = Undefined
		}
		d.Has |= HasValue | HasWritable
	} else {
		if !d.has(HasGet) {
			d.Get = Undefined
		}
		if !d.has(HasSet) {
			d.Set = Undefined
		}
		d.Has |= HasGet | HasSet
	}
	d.Has |= HasEnumerable | HasConfigurable
}

// descriptorOf describes an existing property.
func descriptorOf(p *Property) *PropertyDescriptor {
	if p.Accessor {
		d := AccessorDescriptor(p.Getter, p.Setter, AttrNone)
		d.Enumerable = p.Enumerable
		d.Configurable = p.Configurable
		return &d
	}
	return &PropertyDescriptor{
		Value:        p.Value,
		Writable:     p.Writable,
		Enumerable:   p.Enumerable,
		Configurable: p.Configurable,
		Has:          HasValue | HasWritable | HasEnumerable | HasConfigurable,
	}
}

func objectOrNil(v Value) *Object {
	if o, ok := v.(*Object); ok {
		return o
	}
	return nil
}

// propertyFrom creates a property from a descriptor, using defaults for
// absent fields.
func propertyFrom(d PropertyDescriptor) *Property {
	p := &Property{Enumerable: d.Enumerable, Configurable: d.Configurable}
	if d.IsAccessorDescriptor() {
		p.Accessor = true
		p.Getter = objectOrNil(d.Get)
		p.Setter = objectOrNil(d.Set)
		return p
	}
	p.Value = d.Value
	if p.Value == nil {
		p.Value = Undefined
	}
	p.Writable = d.Writable
	return p
}

// Mark visits the values held by the property.
func (p *Property) Mark(visit Visitor) {
	visitValue(visit, p.Value)
	if p.Getter != nil {
		visit(p.Getter)
	}
	if p.Setter != nil {
		visit(p.Setter)
	}
}
