package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sparknexora-backend/models"
)

// FileStore is the flat-file backend: one JSON array per entity under a data
// directory. It is meant for development and small single-process
// deployments; a process-wide mutex serializes every operation, which makes
// the uniqueness checks and the daily counter atomic.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the data directory and the entity files if missing.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &FileStore{dir: dir}
	for _, name := range []string{"payments.json", "orders.json", "contacts.json", "users.json"} {
		path := s.path(name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := writeFileAtomic(path, []byte("[]")); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *FileStore) Payments() PaymentStore { return &filePayments{s} }
func (s *FileStore) Orders() OrderStore     { return &fileOrders{s} }
func (s *FileStore) Contacts() ContactStore { return &fileContacts{s} }
func (s *FileStore) Users() UserStore       { return &fileUsers{s} }

func (s *FileStore) Close(context.Context) error { return nil }

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

func saveJSON[T any](path string, records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic never leaves a half-written file behind: a crash mid-write
// loses the new data but keeps the old.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// --- payments ---

type filePayments struct {
	s *FileStore
}

func (f *filePayments) load() ([]models.Payment, error) {
	return loadJSON[models.Payment](f.s.path("payments.json"))
}

func (f *filePayments) save(payments []models.Payment) error {
	return saveJSON(f.s.path("payments.json"), payments)
}

func (f *filePayments) Insert(_ context.Context, p *models.Payment) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	payments, err := f.load()
	if err != nil {
		return err
	}
	for i := range payments {
		if payments[i].SessionID == p.SessionID {
			return ErrDuplicate
		}
		// Placeholder ids are non-final; many pending payments may share
		// the placeholder scheme without colliding.
		if !models.IsPlaceholderIntent(p.PaymentIntentID) &&
			payments[i].PaymentIntentID == p.PaymentIntentID {
			return ErrDuplicate
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	return f.save(append(payments, *p))
}

func (f *filePayments) findOne(match func(*models.Payment) bool) (*models.Payment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	payments, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range payments {
		if match(&payments[i]) {
			p := payments[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (f *filePayments) FindBySessionID(_ context.Context, sessionID string) (*models.Payment, error) {
	return f.findOne(func(p *models.Payment) bool { return p.SessionID == sessionID })
}

func (f *filePayments) FindByIntentID(_ context.Context, intentID string) (*models.Payment, error) {
	return f.findOne(func(p *models.Payment) bool { return p.PaymentIntentID == intentID })
}

func (f *filePayments) MarkSucceeded(_ context.Context, id string, paidAt time.Time, chargeID string) error {
	return f.update(id, func(p *models.Payment) {
		if p.Status == models.PaymentStatusSucceeded {
			return
		}
		p.Status = models.PaymentStatusSucceeded
		t := paidAt
		p.PaidAt = &t
		p.ChargeID = chargeID
		p.WebhookProcessed = true
	})
}

func (f *filePayments) MarkFailed(_ context.Context, id string) error {
	return f.update(id, func(p *models.Payment) {
		if p.Status == models.PaymentStatusSucceeded {
			return
		}
		p.Status = models.PaymentStatusFailed
		p.WebhookProcessed = true
	})
}

func (f *filePayments) MarkCanceled(_ context.Context, id string) error {
	return f.update(id, func(p *models.Payment) {
		if p.Status == models.PaymentStatusSucceeded {
			return
		}
		p.Status = models.PaymentStatusCanceled
	})
}

func (f *filePayments) update(id string, apply func(*models.Payment)) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	payments, err := f.load()
	if err != nil {
		return err
	}
	for i := range payments {
		if payments[i].ID == id {
			apply(&payments[i])
			payments[i].UpdatedAt = time.Now()
			return f.save(payments)
		}
	}
	return ErrNotFound
}

// --- orders ---

type fileOrders struct {
	s *FileStore
}

func (f *fileOrders) load() ([]models.Order, error) {
	return loadJSON[models.Order](f.s.path("orders.json"))
}

func (f *fileOrders) save(orders []models.Order) error {
	return saveJSON(f.s.path("orders.json"), orders)
}

func (f *fileOrders) Insert(_ context.Context, o *models.Order) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	orders, err := f.load()
	if err != nil {
		return err
	}
	for i := range orders {
		if orders[i].PaymentID == o.PaymentID || orders[i].OrderNumber == o.OrderNumber {
			return ErrDuplicate
		}
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	return f.save(append(orders, *o))
}

func (f *fileOrders) findOne(match func(*models.Order) bool) (*models.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	orders, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if match(&orders[i]) {
			o := orders[i]
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fileOrders) FindByID(_ context.Context, id string) (*models.Order, error) {
	return f.findOne(func(o *models.Order) bool { return o.ID == id })
}

func (f *fileOrders) FindByPaymentID(_ context.Context, paymentID string) (*models.Order, error) {
	return f.findOne(func(o *models.Order) bool { return o.PaymentID == paymentID })
}

func (f *fileOrders) List(_ context.Context, limit int64) ([]models.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	orders, err := f.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if limit > 0 && int64(len(orders)) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (f *fileOrders) UpdateStatus(_ context.Context, id string, status models.OrderStatus) error {
	return f.update(id, func(o *models.Order) {
		o.Status = status
	})
}

func (f *fileOrders) AddNote(_ context.Context, id string, note models.AdminNote) error {
	return f.update(id, func(o *models.Order) {
		o.AdminNotes = append(o.AdminNotes, note)
	})
}

func (f *fileOrders) update(id string, apply func(*models.Order)) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	orders, err := f.load()
	if err != nil {
		return err
	}
	for i := range orders {
		if orders[i].ID == id {
			apply(&orders[i])
			orders[i].UpdatedAt = time.Now()
			return f.save(orders)
		}
	}
	return ErrNotFound
}

func (f *fileOrders) CountCreatedBetween(_ context.Context, start, end time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.countCreatedBetweenLocked(start, end)
}

func (f *fileOrders) countCreatedBetweenLocked(start, end time.Time) (int64, error) {
	orders, err := f.load()
	if err != nil {
		return 0, err
	}
	var count int64
	for i := range orders {
		if !orders[i].CreatedAt.Before(start) && orders[i].CreatedAt.Before(end) {
			count++
		}
	}
	return count, nil
}

func (f *fileOrders) NextDailySequence(_ context.Context, day string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	path := f.s.path("counters.json")
	counters := make(map[string]int64)
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &counters); err != nil {
			return 0, fmt.Errorf("decode counters.json: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("read counters.json: %w", err)
	}

	key := "orders-" + day
	if _, ok := counters[key]; !ok {
		// Seed from existing orders so data dirs created before the counter
		// existed keep a contiguous sequence.
		start, perr := time.ParseInLocation("20060102", day, time.Local)
		if perr != nil {
			return 0, fmt.Errorf("bad day key %q: %w", day, perr)
		}
		count, cerr := f.countCreatedBetweenLocked(start, start.AddDate(0, 0, 1))
		if cerr != nil {
			return 0, cerr
		}
		counters[key] = count
	}
	counters[key]++

	out, err := json.MarshalIndent(counters, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode counters.json: %w", err)
	}
	if err := writeFileAtomic(path, out); err != nil {
		return 0, err
	}
	return counters[key], nil
}

// --- contacts ---

type fileContacts struct {
	s *FileStore
}

func (f *fileContacts) load() ([]models.Contact, error) {
	return loadJSON[models.Contact](f.s.path("contacts.json"))
}

func (f *fileContacts) save(contacts []models.Contact) error {
	return saveJSON(f.s.path("contacts.json"), contacts)
}

func (f *fileContacts) Insert(_ context.Context, c *models.Contact) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	contacts, err := f.load()
	if err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	return f.save(append(contacts, *c))
}

func (f *fileContacts) FindByID(_ context.Context, id string) (*models.Contact, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	contacts, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		if contacts[i].ID == id {
			c := contacts[i]
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func contactMatches(c *models.Contact, f ContactFilter) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Priority != "" && c.Priority != f.Priority {
		return false
	}
	if f.Service != "" && c.Service != f.Service {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(c.Name), term) &&
			!strings.Contains(strings.ToLower(c.Email), term) &&
			!strings.Contains(strings.ToLower(c.Subject), term) &&
			!strings.Contains(strings.ToLower(c.Company), term) {
			return false
		}
	}
	return true
}

func (f *fileContacts) List(_ context.Context, filter ContactFilter) ([]models.Contact, int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	contacts, err := f.load()
	if err != nil {
		return nil, 0, err
	}

	var matched []models.Contact
	for i := range contacts {
		if contactMatches(&contacts[i], filter) {
			matched = append(matched, contacts[i])
		}
	}
	total := int64(len(matched))

	sort.Slice(matched, func(i, j int) bool {
		a, b := &matched[i], &matched[j]
		var less bool
		switch filter.SortBy {
		case "name":
			less = a.Name < b.Name
		case "email":
			less = a.Email < b.Email
		case "status":
			less = a.Status < b.Status
		case "priority":
			less = a.Priority < b.Priority
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if filter.SortDesc {
			return !less
		}
		return less
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return []models.Contact{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (f *fileContacts) Update(_ context.Context, id string, patch ContactPatch) (*models.Contact, error) {
	return f.mutate(id, func(c *models.Contact) {
		if patch.Status != nil {
			c.Status = *patch.Status
		}
		if patch.Priority != nil {
			c.Priority = *patch.Priority
		}
	})
}

func (f *fileContacts) AddNote(_ context.Context, id string, note models.AdminNote) (*models.Contact, error) {
	return f.mutate(id, func(c *models.Contact) {
		c.AdminNotes = append(c.AdminNotes, note)
	})
}

func (f *fileContacts) mutate(id string, apply func(*models.Contact)) (*models.Contact, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	contacts, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		if contacts[i].ID == id {
			apply(&contacts[i])
			contacts[i].UpdatedAt = time.Now()
			if err := f.save(contacts); err != nil {
				return nil, err
			}
			c := contacts[i]
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fileContacts) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	contacts, err := f.load()
	if err != nil {
		return err
	}
	for i := range contacts {
		if contacts[i].ID == id {
			return f.save(append(contacts[:i], contacts[i+1:]...))
		}
	}
	return ErrNotFound
}

func (f *fileContacts) CountByStatus(_ context.Context) (map[string]int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	contacts, err := f.load()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for i := range contacts {
		counts[contacts[i].Status]++
	}
	return counts, nil
}

func (f *fileContacts) CountCreatedSince(_ context.Context, since time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	contacts, err := f.load()
	if err != nil {
		return 0, err
	}
	var count int64
	for i := range contacts {
		if !contacts[i].CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// --- users ---

type fileUsers struct {
	s *FileStore
}

func (f *fileUsers) load() ([]models.User, error) {
	return loadJSON[models.User](f.s.path("users.json"))
}

func (f *fileUsers) save(users []models.User) error {
	return saveJSON(f.s.path("users.json"), users)
}

func (f *fileUsers) Insert(_ context.Context, u *models.User) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	users, err := f.load()
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].Email == u.Email {
			return ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	return f.save(append(users, *u))
}

func (f *fileUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return f.findOne(func(u *models.User) bool { return u.Email == email })
}

func (f *fileUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	return f.findOne(func(u *models.User) bool { return u.ID == id })
}

func (f *fileUsers) findOne(match func(*models.User) bool) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	users, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if match(&users[i]) {
			u := users[i]
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fileUsers) RecordFailedLogin(_ context.Context, id string, lockUntil *time.Time) error {
	return f.update(id, func(u *models.User) {
		u.LoginAttempts++
		if lockUntil != nil {
			t := *lockUntil
			u.LockUntil = &t
		}
	})
}

func (f *fileUsers) ResetLoginAttempts(_ context.Context, id string, lastLogin time.Time) error {
	return f.update(id, func(u *models.User) {
		u.LoginAttempts = 0
		u.LockUntil = nil
		t := lastLogin
		u.LastLogin = &t
	})
}

func (f *fileUsers) update(id string, apply func(*models.User)) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	users, err := f.load()
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].ID == id {
			apply(&users[i])
			users[i].UpdatedAt = time.Now()
			return f.save(users)
		}
	}
	return ErrNotFound
}
