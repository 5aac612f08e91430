package vm

// CanBeHeldWeakly reports whether v may be a WeakRef target, a weak
// collection key or a finalization target. Only objects qualify.
func CanBeHeldWeakly(v Value) bool {
	_, ok := v.(*Object)
	return ok
}

// --- WeakRef ---

// WeakRefData is the internal slot of a WeakRef. The target is a weak edge.
type WeakRefData struct {
	target *Object
}

// Mark reports nothing: the target is held weakly.
func (d *WeakRefData) Mark(visit Visitor) {}

// NewWeakRef creates a WeakRef object. The target stays alive at least until
// the current job ends.
func (a *Agent) NewWeakRef(target *Object, proto *Object) *Object {
	o := OrdinaryObjectCreate(proto)
	o.Class = "WeakRef"
	o.Internal = &WeakRefData{target: target}
	a.AddToKeptObjects(target)
	a.registerWeak(o)
	return o
}

// WeakRefDeref returns the target, or undefined once it was collected.
func (a *Agent) WeakRefDeref(ref *Object) Value {
	d := ref.Internal.(*WeakRefData)
	if d.target == nil {
		return Undefined
	}
	a.AddToKeptObjects(d.target)
	return d.target
}

// --- WeakMap / WeakSet ---

// WeakMapData holds ephemeron entries: a value is live only while both the
// map and its key are.
type WeakMapData struct {
	entries map[*Object]Value
}

func (d *WeakMapData) Mark(visit Visitor) {}

func (d *WeakMapData) Get(key *Object) (Value, bool) {
	v, ok := d.entries[key]
	return v, ok
}

func (d *WeakMapData) Set(key *Object, v Value) {
	d.entries[key] = v
}

func (d *WeakMapData) Has(key *Object) bool {
	_, ok := d.entries[key]
	return ok
}

func (d *WeakMapData) Delete(key *Object) bool {
	if _, ok := d.entries[key]; !ok {
		return false
	}
	delete(d.entries, key)
	return true
}

// Len is the number of live entries as of the last collection.
func (d *WeakMapData) Len() int { return len(d.entries) }

// NewWeakMap allocates an empty WeakMap.
func (a *Agent) NewWeakMap(proto *Object) *Object {
	o := OrdinaryObjectCreate(proto)
	o.Class = "WeakMap"
	o.Internal = &WeakMapData{entries: make(map[*Object]Value)}
	a.registerWeak(o)
	return o
}

// WeakSetData holds weakly referenced members.
type WeakSetData struct {
	entries map[*Object]struct{}
}

func (d *WeakSetData) Mark(visit Visitor) {}

func (d *WeakSetData) Add(key *Object) { d.entries[key] = struct{}{} }

func (d *WeakSetData) Has(key *Object) bool {
	_, ok := d.entries[key]
	return ok
}

func (d *WeakSetData) Delete(key *Object) bool {
	if _, ok := d.entries[key]; !ok {
		return false
	}
	delete(d.entries, key)
	return true
}

func (d *WeakSetData) Len() int { return len(d.entries) }

// NewWeakSet allocates an empty WeakSet.
func (a *Agent) NewWeakSet(proto *Object) *Object {
	o := OrdinaryObjectCreate(proto)
	o.Class = "WeakSet"
	o.Internal = &WeakSetData{entries: make(map[*Object]struct{})}
	a.registerWeak(o)
	return o
}

// --- FinalizationRegistry ---

type finalizationCell struct {
	target *Object // weak
	held   Value
	token  *Object // weak
}

// FinalizationRegistryData is the internal slot of a FinalizationRegistry.
type FinalizationRegistryData struct {
	realm   *Realm
	cleanup *Object
	cells   []finalizationCell
}

// Mark keeps the callback and held values alive. Targets and unregister
// tokens are weak.
func (d *FinalizationRegistryData) Mark(visit Visitor) {
	visit(d.realm)
	visit(d.cleanup)
	for _, cell := range d.cells {
		visitValue(visit, cell.held)
	}
}

// NewFinalizationRegistry allocates a registry that calls cleanup in realm.
func (a *Agent) NewFinalizationRegistry(realm *Realm, cleanup *Object, proto *Object) *Object {
	o := OrdinaryObjectCreate(proto)
	o.Class = "FinalizationRegistry"
	o.Internal = &FinalizationRegistryData{realm: realm, cleanup: cleanup}
	a.registerWeak(o)
	return o
}

// Register adds a cell. token may be nil.
func (d *FinalizationRegistryData) Register(target *Object, held Value, token *Object) {
	d.cells = append(d.cells, finalizationCell{target: target, held: held, token: token})
}

// Unregister removes every cell registered with token.
func (d *FinalizationRegistryData) Unregister(token *Object) bool {
	removed := false
	cells := d.cells[:0]
	for _, cell := range d.cells {
		if cell.token == token {
			removed = true
			continue
		}
		cells = append(cells, cell)
	}
	clear(d.cells[len(cells):])
	d.cells = cells
	return removed
}

// sweep drops cells whose target died and queues one cleanup job calling
// the callback with their held values.
func (d *FinalizationRegistryData) sweep(a *Agent, g *collector) int {
	var dead []Value
	cells := d.cells[:0]
	for _, cell := range d.cells {
		if cell.token != nil && !g.isMarked(cell.token) {
			cell.token = nil
		}
		if !g.isMarked(cell.target) {
			dead = append(dead, cell.held)
			continue
		}
		cells = append(cells, cell)
	}
	clear(d.cells[len(cells):])
	d.cells = cells
	if len(dead) == 0 {
		return 0
	}
	cleanup := d.cleanup
	held := dead
	a.EnqueueJob(d.realm, func() {
		for _, v := range held {
			if _, c := Call(a, cleanup, Undefined, []Value{v}); c != nil {
				a.ReportError(c.Value)
				return
			}
		}
	}, heldValues(held), cleanup)
	return len(dead)
}

// heldValues adapts a value list to a Marker.
type heldValues []Value

func (h heldValues) Mark(visit Visitor) { visitValues(visit, h) }
