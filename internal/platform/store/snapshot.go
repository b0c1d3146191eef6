package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/careroute/careroute/internal/domain/query"
	"github.com/careroute/careroute/internal/domain/registry"
)

const snapshotVersion = 1

// snapshot is the on-disk representation of the whole store. Record arrays
// are written in registration order; the seq counters make id allocation
// durable across restarts.
type snapshot struct {
	Version    int                   `json:"version"`
	SavedAt    time.Time             `json:"saved_at"`
	PatientSeq int64                 `json:"patient_seq"`
	DoctorSeq  int64                 `json:"doctor_seq"`
	QuerySeq   int64                 `json:"query_seq"`
	Patients   []*registry.Patient   `json:"patients"`
	Doctors    []*registry.Doctor    `json:"doctors"`
	Queries    []*query.MedicalQuery `json:"queries"`
}

// Load replaces the store's state with the snapshot at the configured path.
// A missing file starts the store empty; a file that cannot be decoded is an
// error, so a corrupt snapshot is never silently discarded.
func (s *MemoryStore) Load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info().Str("path", s.path).Msg("no snapshot found, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading snapshot %s: %w", s.path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", s.path, err)
	}
	if snap.Version > snapshotVersion {
		return fmt.Errorf("snapshot %s has version %d, this build supports up to %d", s.path, snap.Version, snapshotVersion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.patients = make(map[string]*registry.Patient, len(snap.Patients))
	s.patientOrder = s.patientOrder[:0]
	for _, p := range snap.Patients {
		s.patients[p.ID] = p
		s.patientOrder = append(s.patientOrder, p.ID)
	}
	s.doctors = make(map[string]*registry.Doctor, len(snap.Doctors))
	s.doctorOrder = s.doctorOrder[:0]
	for _, d := range snap.Doctors {
		s.doctors[d.ID] = d
		s.doctorOrder = append(s.doctorOrder, d.ID)
	}
	s.queries = make(map[string]*query.MedicalQuery, len(snap.Queries))
	s.queryOrder = s.queryOrder[:0]
	for _, q := range snap.Queries {
		s.queries[q.ID] = q
		s.queryOrder = append(s.queryOrder, q.ID)
	}
	s.patientSeq = snap.PatientSeq
	s.doctorSeq = snap.DoctorSeq
	s.querySeq = snap.QuerySeq
	s.dirty = false

	s.log.Info().Str("path", s.path).
		Int("patients", len(snap.Patients)).
		Int("doctors", len(snap.Doctors)).
		Int("queries", len(snap.Queries)).
		Msg("snapshot loaded")
	return nil
}

// Save writes the snapshot atomically: marshal under the lock, then write to
// a temp file in the same directory and rename over the target.
func (s *MemoryStore) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	snap := snapshot{
		Version:    snapshotVersion,
		SavedAt:    time.Now().UTC(),
		PatientSeq: s.patientSeq,
		DoctorSeq:  s.doctorSeq,
		QuerySeq:   s.querySeq,
		Patients:   make([]*registry.Patient, 0, len(s.patientOrder)),
		Doctors:    make([]*registry.Doctor, 0, len(s.doctorOrder)),
		Queries:    make([]*query.MedicalQuery, 0, len(s.queryOrder)),
	}
	for _, id := range s.patientOrder {
		snap.Patients = append(snap.Patients, s.patients[id])
	}
	for _, id := range s.doctorOrder {
		snap.Doctors = append(snap.Doctors, s.doctors[id])
	}
	for _, id := range s.queryOrder {
		snap.Queries = append(snap.Queries, s.queries[id])
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err == nil {
		s.dirty = false
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := s.writeFile(data); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) writeFile(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

func (s *MemoryStore) isDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// StartAutosave saves the store at the given interval, skipping intervals
// with no changes, until ctx is cancelled. The caller still does a final
// Save at shutdown.
func (s *MemoryStore) StartAutosave(ctx context.Context, interval time.Duration) {
	if s.path == "" || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if !s.isDirty() {
					continue
				}
				if err := s.Save(); err != nil {
					s.log.Error().Err(err).Msg("snapshot autosave failed")
				}
			}
		}
	}()
}
