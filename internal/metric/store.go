// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Centralised store of per-video assessment results.

package metric

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrRecordNotFound = errors.New("record not found")

type ID int64

// Store keeps records of a single run. Every inserted record is stamped with
// the run ID.
type Store struct {
	mu      sync.RWMutex
	runID   string
	records map[ID]Record
	next    ID
}

func NewStore() *Store {
	return &Store{
		runID:   uuid.NewString(),
		records: make(map[ID]Record),
	}
}

// RunID identifies the run records of this store belong to.
func (s *Store) RunID() string {
	return s.runID
}

func (s *Store) Insert(r Record) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.RunID = s.runID
	s.records[s.next] = r
	id := s.next
	s.next++

	return id
}

func (s *Store) Get(id ID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return r, fmt.Errorf("getting record: %w", ErrRecordNotFound)
	}

	return r, nil
}

func (s *Store) Exists(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.records[id]

	return exists
}

// GetIDs returns IDs of all records in insertion order.
func (s *Store) GetIDs() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]ID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Records returns all records in insertion order.
func (s *Store) Records() []Record {
	ids := s.GetIDs()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) Update(id ID, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("updating record: %w", ErrRecordNotFound)
	}

	r.RunID = s.runID
	s.records[id] = r
	return nil
}

func (s *Store) Delete(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("deleting record: %w", ErrRecordNotFound)
	}

	delete(s.records, id)
	return nil
}

// Record contains assessment result of a single video.
type Record struct {
	RunID      string
	Name       string
	SourceFile string
	Decoder    string
	ScoresFile string
	PlotFile   string

	Width    int
	Height   int
	FPS      float64
	Duration float64
	PixFmt   string

	FramesSampled int
	TilesPerFrame int
	MOS           float64

	FrameScoreMin          float64
	FrameScoreMax          float64
	FrameScoreMean         float64
	FrameScoreHarmonicMean float64
	FrameScoreStDev        float64
	FrameScoreVariance     float64

	// Assessment wall clock time and decoder process usage.
	HElapsed       string
	Elapsed        time.Duration
	DecoderHStime  string
	DecoderHUtime  string
	DecoderStime   time.Duration
	DecoderUtime   time.Duration
	DecoderMaxRss  int64
	DecoderCPUPerc float64

	Error string
}
