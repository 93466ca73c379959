package memtable

// Record is one versioned entry of the table.
//
// Seq is a monotonically increasing sequence number assigned by the writer;
// Tombstone means the key was deleted at Seq.
type Record struct {
	Key       []byte
	Value     []byte
	Tombstone bool
	Seq       uint64
}

func (r Record) clone() Record {
	return Record{
		Key:       cloneBytes(r.Key),
		Value:     cloneBytes(r.Value),
		Tombstone: r.Tombstone,
		Seq:       r.Seq,
	}
}

// Size approximates the memory held by the record.
func (r Record) Size() int {
	return len(r.Key) + len(r.Value) + 32
}
