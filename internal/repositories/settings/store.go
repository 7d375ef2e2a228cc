package settings

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/Lumerin-protocol/miner-dashboard/internal/session"
	"gopkg.in/yaml.v3"
)

var (
	ErrRead  = errors.New("cannot read settings")
	ErrWrite = errors.New("cannot write settings")
)

// Store persists the user mining settings in a yaml file
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load merges the saved settings into defaults, a missing file keeps the defaults
func (s *Store) Load(defaults session.Settings) (session.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, lib.WrapError(ErrRead, err)
	}

	settings := defaults
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return defaults, lib.WrapError(ErrRead, err)
	}
	if settings.Threads <= 0 {
		settings.Threads = defaults.Threads
	}
	return settings, nil
}

func (s *Store) Save(settings session.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(settings)
	if err != nil {
		return lib.WrapError(ErrWrite, err)
	}

	// write then rename so a crash never leaves a truncated file
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return lib.WrapError(ErrWrite, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return lib.WrapError(ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return lib.WrapError(ErrWrite, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return lib.WrapError(ErrWrite, err)
	}
	return nil
}
