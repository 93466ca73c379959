package storeutil

import (
	"strings"

	"github.com/ChinmayNoob/histkv/store"
)

// PartitionSeparator joins partition and store names.
const PartitionSeparator = "$%$"

// PartitionedSystem splits one storage system into named partitions, each a
// storage system of its own.
type PartitionedSystem struct {
	parent store.StorageSystem
}

func NewPartitionedSystem(parent store.StorageSystem) *PartitionedSystem {
	return &PartitionedSystem{parent: parent}
}

// Partition returns the storage system of the named partition.
func (p *PartitionedSystem) Partition(name string) (store.StorageSystem, error) {
	if name == "" || strings.Contains(name, PartitionSeparator) {
		return nil, ErrInvalidName
	}
	return &partitionSystem{parent: p.parent, prefix: name + PartitionSeparator}, nil
}

// Close closes the parent system.
func (p *PartitionedSystem) Close() error {
	return p.parent.Close()
}

type partitionSystem struct {
	parent store.StorageSystem
	prefix string
}

// Store names may not start with "%$": partition "a$%" with store "x" would
// otherwise share the full name of partition "a" with store "%$x".
func checkStoreName(name string) error {
	if strings.HasPrefix(name, PartitionSeparator[1:]) {
		return ErrInvalidName
	}
	return nil
}

func (s *partitionSystem) OpenStore(name string) (store.Store, error) {
	if err := checkStoreName(name); err != nil {
		return nil, err
	}
	return s.parent.OpenStore(s.prefix + name)
}

func (s *partitionSystem) RemoveStore(name string) error {
	if err := checkStoreName(name); err != nil {
		return err
	}
	return s.parent.RemoveStore(s.prefix + name)
}

// Close is a no-op; the parent outlives its partitions.
func (s *partitionSystem) Close() error {
	return nil
}
