package gc

import "github.com/embergc/corevm/object"

// Rough per-object overhead charged against the memory debt on top of
// the caller-visible payload size, modeling the GCHeader plus Go's own
// allocator bookkeeping. Not exact accounting, just enough to make the
// debt-driven pacing in api.go responsive to real allocation traffic.
const (
	headerOverhead = 24
	nodeOverhead   = 40 // one hash-table node: two Values + next + dead
	valueOverhead  = 16
)

// linkNew paints o with the collector's current white, links it at the
// head of allgc, and charges its size against the memory debt.
func (c *Collector) linkNew(o object.GCObject, tag object.Tag, size int64) {
	o.Header().Init(tag, c.currentWhite)
	o.Header().SetNext(c.allgc)
	c.allgc = o
	c.Mem.AddDebt(size)
	c.stats.BytesAllocated += size
}

// NewTable allocates and registers a table with an initial array part
// of narr slots and a hash part sized for at least nhash entries.
func (c *Collector) NewTable(narr, nhash int) *object.Table {
	t := object.NewTable(narr, nhash)
	size := int64(headerOverhead) + int64(narr)*valueOverhead + int64(nhash)*nodeOverhead
	c.linkNew(t, object.TagTable, size)
	return t
}

// NewLongString allocates a non-interned long string.
func (c *Collector) NewLongString(content string) *object.TString {
	s := object.NewLongString(content)
	c.linkNew(s, object.TagLongStr, int64(headerOverhead+len(content)))
	return s
}

// InternString returns the canonical short string for content,
// allocating and registering a new TString only on first sight.
func (c *Collector) InternString(it *object.InternTable, content string) *object.TString {
	return it.Intern(content, func(size int) *object.TString {
		s := object.NewShortStringShell()
		c.linkNew(s, object.TagShortStr, int64(headerOverhead+size))
		return s
	})
}

// NewProto allocates and registers an (internal-only-tagged) function
// prototype.
func (c *Collector) NewProto(source *object.TString) *object.Proto {
	p := object.NewProto(source)
	c.linkNew(p, object.ProtoTag(), int64(headerOverhead+len(p.Code)))
	return p
}

// NewLClosure allocates and registers a script closure over proto.
func (c *Collector) NewLClosure(proto *object.Proto) *object.LClosure {
	cl := object.NewLClosure(proto)
	size := int64(headerOverhead) + int64(len(cl.Upvals))*8
	c.linkNew(cl, object.TagLClosure, size)
	return cl
}

// NewCClosure allocates and registers a native closure.
func (c *Collector) NewCClosure(fn object.GoFunction, upvalues []object.Value) *object.CClosure {
	cl := object.NewCClosure(fn, upvalues)
	size := int64(headerOverhead) + int64(len(upvalues))*valueOverhead
	c.linkNew(cl, object.TagCClosure, size)
	return cl
}

// NewUserdata allocates and registers a full userdata.
func (c *Collector) NewUserdata(size, nUserValues int) *object.Userdata {
	u := object.NewUserdata(size, nUserValues)
	total := int64(headerOverhead + size + nUserValues*valueOverhead)
	c.linkNew(u, object.TagUserdata, total)
	return u
}

// NewThread allocates and registers a coroutine with an initial stack
// of the given size.
func (c *Collector) NewThread(stackSize int) *object.Thread {
	th := object.NewThread(stackSize)
	size := int64(headerOverhead) + int64(stackSize)*valueOverhead
	c.linkNew(th, object.TagThread, size)
	return th
}
