package object

// FromValue resolves the concrete heap object a collectable Value points
// at. It returns nil for non-collectable values (nil, booleans, numbers,
// light userdata, VLCF). The collector uses this as its single dispatch
// point rather than requiring every caller to know the full tag set.
func FromValue(v Value) GCObject {
	switch v.tag {
	case TagShortStr, TagLongStr:
		return AsTString(v)
	case TagTable:
		return AsTable(v)
	case TagLClosure:
		return AsLClosure(v)
	case TagCClosure:
		return AsCClosure(v)
	case TagUserdata:
		return AsUserdata(v)
	case TagThread:
		return AsThread(v)
	case tagProtoInternal:
		return AsProtoInternal(v)
	default:
		return nil
	}
}
