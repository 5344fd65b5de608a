package assistant

import (
	"fmt"
	"sync"
	"time"
)

// Pending modes for the numbered-pick flow.
const (
	PendingDonePick    = "done_pick"
	PendingEditPick    = "edit_pick"
	PendingEditNewText = "edit_new_text"
)

// Wizard stages for the todo creation flow.
const (
	WizardPickTitle = "pick_title"
	WizardNeedTitle = "need_title"
	WizardNeedDesc  = "need_desc"
)

// Pending is an in-flight numbered-pick interaction; at most one per chat.
type Pending struct {
	Mode            string
	SourceMessageID int
	TaskID          string
	ItemNumber      int
}

// Wizard is an in-flight todo creation flow; at most one per chat.
type Wizard struct {
	Stage  string
	Title  string
	Titles []string
}

// CachedList is the snapshot behind one rendered task-list message.
type CachedList struct {
	Kind  string
	Tasks []Task
	Text  string
}

type cacheKey struct {
	chatID    int64
	messageID int
}

// DefaultRenderCacheSize bounds the render cache when no size is configured.
const DefaultRenderCacheSize = 256

// Store holds all per-chat conversational state for one process. A single
// mutex serializes access; throughput is one personal chat, not a fleet.
type Store struct {
	mu sync.Mutex

	seq   int64
	notes map[int64][]Note
	tasks map[int64][]Task

	pending map[int64]Pending
	wizard  map[int64]Wizard

	cache      map[cacheKey]CachedList
	cacheOrder []cacheKey
	cacheCap   int
}

// NewStore creates an empty state store. cacheCap <= 0 selects the default
// render-cache bound.
func NewStore(cacheCap int) *Store {
	if cacheCap <= 0 {
		cacheCap = DefaultRenderCacheSize
	}
	return &Store{
		notes:    make(map[int64][]Note),
		tasks:    make(map[int64][]Task),
		pending:  make(map[int64]Pending),
		wizard:   make(map[int64]Wizard),
		cache:    make(map[cacheKey]CachedList),
		cacheCap: cacheCap,
	}
}

// NextID returns the next in-memory id for the given prefix ("note"/"task").
// The sequence is shared across prefixes and never resets.
func (s *Store) NextID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

// AppendNote records a note in the in-memory fallback list.
func (s *Store) AppendNote(chatID int64, n Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[chatID] = append(s.notes[chatID], n)
}

// AppendTask records a task in the in-memory fallback list.
func (s *Store) AppendTask(chatID int64, t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[chatID] = append(s.tasks[chatID], t)
}

// Notes returns a copy of the chat's notes in creation order.
func (s *Store) Notes(chatID int64) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Note(nil), s.notes[chatID]...)
}

// Tasks returns a copy of the chat's tasks in creation order.
func (s *Store) Tasks(chatID int64) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.tasks[chatID]...)
}

// MarkTaskDone flips a task to done in the in-memory list. Returns whether
// the id was found and whether it was already done. done_at is written only
// on the first transition.
func (s *Store) MarkTaskDone(chatID int64, id string, now time.Time) (found, alreadyDone bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.tasks[chatID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if list[i].Done {
			return true, true
		}
		list[i].Done = true
		ts := now
		list[i].DoneAt = &ts
		return true, false
	}
	return false, false
}

// UpdateTask rewrites title/description of an in-memory task by id. Empty
// fields are left untouched.
func (s *Store) UpdateTask(chatID int64, id, title, description string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.tasks[chatID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if title != "" {
			list[i].Title = title
		}
		if description != "" {
			list[i].Description = description
		}
		return true
	}
	return false
}

// ChatsWithTasks lists chat ids holding at least one task.
func (s *Store) ChatsWithTasks() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		out = append(out, id)
	}
	return out
}

// Pending returns the chat's pending interaction, if any.
func (s *Store) Pending(chatID int64) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[chatID]
	return p, ok
}

// SetPending replaces the chat's pending interaction.
func (s *Store) SetPending(chatID int64, p Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[chatID] = p
}

// ClearPending drops the chat's pending interaction.
func (s *Store) ClearPending(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, chatID)
}

// Wizard returns the chat's todo wizard, if any.
func (s *Store) Wizard(chatID int64) (Wizard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wizard[chatID]
	return w, ok
}

// SetWizard replaces the chat's todo wizard.
func (s *Store) SetWizard(chatID int64, w Wizard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wizard[chatID] = w
}

// ClearWizard drops the chat's todo wizard.
func (s *Store) ClearWizard(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wizard, chatID)
}

// CacheList stores a rendered list snapshot under (chat, message), evicting
// the oldest entry once the cache is full. Tasks are copied defensively.
func (s *Store) CacheList(chatID int64, messageID int, cl CachedList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cacheKey{chatID, messageID}
	cl.Tasks = append([]Task(nil), cl.Tasks...)
	if _, exists := s.cache[key]; !exists {
		for len(s.cacheOrder) >= s.cacheCap {
			oldest := s.cacheOrder[0]
			s.cacheOrder = s.cacheOrder[1:]
			delete(s.cache, oldest)
		}
		s.cacheOrder = append(s.cacheOrder, key)
	}
	s.cache[key] = cl
}

// CachedList returns the snapshot behind a sent list message, if still cached.
func (s *Store) CachedList(chatID int64, messageID int) (CachedList, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.cache[cacheKey{chatID, messageID}]
	if !ok {
		return CachedList{}, false
	}
	cl.Tasks = append([]Task(nil), cl.Tasks...)
	return cl, true
}

// DropCachedList removes a cached snapshot, typically once its list empties.
func (s *Store) DropCachedList(chatID int64, messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cacheKey{chatID, messageID}
	if _, ok := s.cache[key]; !ok {
		return
	}
	delete(s.cache, key)
	for i, k := range s.cacheOrder {
		if k == key {
			s.cacheOrder = append(s.cacheOrder[:i], s.cacheOrder[i+1:]...)
			break
		}
	}
}

// CacheLen reports the number of cached list snapshots.
func (s *Store) CacheLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}
