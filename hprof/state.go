package hprof

// Warner receives non-fatal anomalies so they can be counted and surfaced
// in the final report without aborting the parse. Implemented by
// report.Sidecar; kept as a local interface so hprof does not import report.
type Warner interface {
	Warn(kind, detail string)
}

// Warning kind tokens, mirrored by report.WarningKind values of the same
// string form.
const (
	WarnDuplicateKey        = "duplicate_key"
	WarnUnknownTopLevelTag  = "unknown_top_level_tag"
	WarnCorruptUtf8         = "corrupt_utf8"
)

type nopWarner struct{}

func (nopWarner) Warn(string, string) {}

// ClassDescriptor is the resolved shape of a class: its name string id and
// its instance byte size (0 until a CLASS_DUMP sub-record supplies it).
type ClassDescriptor struct {
	NameID        uint64
	InstanceBytes uint32
}

// State is the mutable table threaded through the record loop: identifier
// size, the string table, the class table, and a small amount of resolver
// bookkeeping. It is not safe for concurrent use; it is owned solely by the
// decoder goroutine.
type State struct {
	IDWidth int

	strings map[uint64]string
	classes map[uint64]*ClassDescriptor

	// nameCache memoizes classID -> rendered name so repeated instance
	// dumps of the same class don't re-walk strings/classes each time.
	nameCache map[uint64]string

	// threadObjSeen tracks ROOT_THREAD_OBJ ids already counted so a thread
	// object named by more than one root record is counted once.
	// START_THREAD records are counted separately and are not checked
	// against this set.
	threadObjSeen map[uint64]bool

	warn Warner
}

// NewState creates parser state for the given identifier width (4 or 8,
// validated by the header reader before this is constructed).
func NewState(idWidth int, warn Warner) *State {
	if warn == nil {
		warn = nopWarner{}
	}
	return &State{
		IDWidth:       idWidth,
		strings:       make(map[uint64]string),
		classes:       make(map[uint64]*ClassDescriptor),
		nameCache:     make(map[uint64]string),
		threadObjSeen: make(map[uint64]bool),
		warn:          warn,
	}
}

// PutString inserts a STRING record's payload. Copies bytes so no borrowed
// prefetch buffer is retained past its recycling point.
func (s *State) PutString(id uint64, raw []byte) {
	val := string(raw) // string() copies
	if existing, ok := s.strings[id]; ok && existing != val {
		s.warn.Warn(WarnDuplicateKey, "string id reassigned")
	}
	s.strings[id] = val
}

// String looks up a string id; ok is false if the id was never seen (a
// missing string never aborts parsing).
func (s *State) String(id uint64) (string, bool) {
	v, ok := s.strings[id]
	return v, ok
}

// LoadClass records the class-id -> name-id binding from a LOAD_CLASS
// record. Last writer wins on a differing rebind, with a counted warning.
func (s *State) LoadClass(classID, nameID uint64) {
	d := s.classDescriptor(classID)
	if d.NameID != 0 && d.NameID != nameID {
		s.warn.Warn(WarnDuplicateKey, "class id rebound to a different name id")
	}
	d.NameID = nameID
	delete(s.nameCache, classID)
}

// SetInstanceBytes records a CLASS_DUMP's declared instance size. Per the
// idempotent-write policy, a later CLASS_DUMP only overwrites an existing
// non-zero value when the new value is itself non-zero.
func (s *State) SetInstanceBytes(classID uint64, size uint32) {
	d := s.classDescriptor(classID)
	if d.InstanceBytes != 0 && size != 0 && d.InstanceBytes != size {
		s.warn.Warn(WarnDuplicateKey, "class dump reported a different instance size")
	}
	if size != 0 {
		d.InstanceBytes = size
	}
}

// InstanceBytes returns the known instance size for a class id, or 0 if
// unknown.
func (s *State) InstanceBytes(classID uint64) uint32 {
	if d, ok := s.classes[classID]; ok {
		return d.InstanceBytes
	}
	return 0
}

func (s *State) classDescriptor(classID uint64) *ClassDescriptor {
	d, ok := s.classes[classID]
	if !ok {
		d = &ClassDescriptor{}
		s.classes[classID] = d
	}
	return d
}

// ClassName renders a class id to its dotted, array-expanded name,
// memoizing the result.
func (s *State) ClassName(classID uint64) string {
	if name, ok := s.nameCache[classID]; ok {
		return name
	}
	d, ok := s.classes[classID]
	if !ok || d.NameID == 0 {
		return unknownClassName
	}
	raw, ok := s.String(d.NameID)
	if !ok {
		return unknownClassName
	}
	name := renderClassName(raw)
	s.nameCache[classID] = name
	return name
}

// ObjectArrayClassName renders the synthetic array class name for an
// OBJECT_ARRAY_DUMP, given the element class id.
func (s *State) ObjectArrayClassName(elementClassID uint64) string {
	elem := s.ClassName(elementClassID)
	switch elem {
	case unknownClassName, corruptClassName:
		return elem
	default:
		return elem + "[]"
	}
}

// MarkThreadObj records a ROOT_THREAD_OBJ thread object id, returning true
// if this is the first time it has been seen (the caller should then
// increment the thread count).
func (s *State) MarkThreadObj(objID uint64) bool {
	if s.threadObjSeen[objID] {
		return false
	}
	s.threadObjSeen[objID] = true
	return true
}
