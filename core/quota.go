package core

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

const (
	quotaKey = "quota"
	usedKey  = "bytes_used"
)

// QuotaStatus is the result of CheckQuota (§4.4).
type QuotaStatus struct {
	Used    uint64
	Quota   uint64 // 0 means unlimited
	Percent float64
	Over    bool
}

// GetQuota returns the configured byte quota, 0 meaning unlimited.
func (s *Store) GetQuota() (uint64, error) {
	var quota uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSettings).Get([]byte(quotaKey))
		if len(v) == 8 {
			quota = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return quota, nil
}

// SetQuota sets the byte quota; 0 clears it (no limit, "none" per §4.4).
func (s *Store) SetQuota(bytes uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bytes)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(quotaKey), buf)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return nil
}

// CheckQuota reports current usage against the configured quota.
func (s *Store) CheckQuota() (QuotaStatus, error) {
	quota, err := s.GetQuota()
	if err != nil {
		return QuotaStatus{}, err
	}
	var used uint64
	err = s.db.View(func(tx *bolt.Tx) error {
		used = currentUsed(tx)
		return nil
	})
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	status := QuotaStatus{Used: used, Quota: quota}
	if quota > 0 {
		status.Percent = float64(used) / float64(quota) * 100
		status.Over = used > quota
	}
	return status, nil
}
