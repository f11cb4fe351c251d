package local

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"organizer/internal/models"
)

// legacyNamespace seeds the deterministic ids given to v0 records.
var legacyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("organizer/local-state"))

// legacyID maps a v0 id (number or string) to a stable UUID. Ids that are
// already UUIDs are kept.
func legacyID(slot string, raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = strings.TrimSpace(s)
	}
	if text == "" {
		return ""
	}
	if _, err := uuid.Parse(text); err == nil {
		return text
	}
	return uuid.NewSHA1(legacyNamespace, []byte(slot+":"+text)).String()
}

type legacyTask struct {
	ID        json.RawMessage `json:"id"`
	Text      string          `json:"text"`
	Date      string          `json:"date"`
	Frequency string          `json:"frequency"`
	EndDate   string          `json:"endDate"`
}

type legacyNote struct {
	ID      json.RawMessage `json:"id"`
	Content string          `json:"content"`
}

type legacyFile struct {
	ID       json.RawMessage `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Date     string          `json:"date"`
	ParentID json.RawMessage `json:"parentId"`
}

// slotLoad is the outcome of loading one slot.
type slotLoad struct {
	name     string
	version  int
	repaired int
}

func (l slotLoad) dirty() bool { return l.version != SchemaVersion || l.repaired > 0 }

func (st *Store) load() error {
	st.s = state{ui: map[string][]string{}, revoked: map[string]time.Time{}}
	loaders := []func() (slotLoad, error){
		st.loadUsers,
		st.loadTasks,
		st.loadNotes,
		st.loadFiles,
		st.loadUI,
		st.loadRevoked,
	}
	var dirty []string
	for _, fn := range loaders {
		res, err := fn()
		if err != nil {
			return err
		}
		if res.dirty() {
			st.logger.Info("local slot migrated",
				slog.String("slot", res.name),
				slog.Int("from_version", res.version),
				slog.Int("repaired", res.repaired))
			dirty = append(dirty, res.name)
		}
	}
	return st.saveLocked(dirty...)
}

func decodeSlot(name string, raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("slot %s: %w: %w", name, models.ErrCorruptState, err)
	}
	return nil
}

func (st *Store) loadUsers() (slotLoad, error) {
	res := slotLoad{name: slotUsers}
	raw, version, err := st.readSlot(slotUsers)
	if err != nil {
		return res, err
	}
	res.version = version
	var users []userRecord
	if err := decodeSlot(slotUsers, raw, &users); err != nil {
		return res, err
	}
	st.s.users, res.repaired = repairUsers(users, st.logger)
	return res, nil
}

func (st *Store) loadTasks() (slotLoad, error) {
	res := slotLoad{name: slotTasks}
	raw, version, err := st.readSlot(slotTasks)
	if err != nil {
		return res, err
	}
	res.version = version
	var tasks []models.Task
	if version == 0 {
		var legacy []legacyTask
		if err := decodeSlot(slotTasks, raw, &legacy); err != nil {
			return res, err
		}
		now := time.Now().UTC()
		for _, lt := range legacy {
			tasks = append(tasks, models.Task{
				ID:        legacyID(slotTasks, lt.ID),
				UserID:    st.opts.LegacyOwnerID,
				Text:      lt.Text,
				Date:      lt.Date,
				Frequency: models.Frequency(lt.Frequency),
				EndDate:   lt.EndDate,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	} else if err := decodeSlot(slotTasks, raw, &tasks); err != nil {
		return res, err
	}
	st.s.tasks, res.repaired = repairTasks(tasks, st.logger)
	return res, nil
}

func (st *Store) loadNotes() (slotLoad, error) {
	res := slotLoad{name: slotNotes}
	raw, version, err := st.readSlot(slotNotes)
	if err != nil {
		return res, err
	}
	res.version = version
	var notes []models.Note
	if version == 0 {
		var legacy []legacyNote
		if err := decodeSlot(slotNotes, raw, &legacy); err != nil {
			return res, err
		}
		now := time.Now().UTC()
		for _, ln := range legacy {
			notes = append(notes, models.Note{
				ID:        legacyID(slotNotes, ln.ID),
				UserID:    st.opts.LegacyOwnerID,
				Content:   ln.Content,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	} else if err := decodeSlot(slotNotes, raw, &notes); err != nil {
		return res, err
	}
	st.s.notes, res.repaired = repairNotes(notes, st.logger)
	return res, nil
}

func (st *Store) loadFiles() (slotLoad, error) {
	res := slotLoad{name: slotFiles}
	raw, version, err := st.readSlot(slotFiles)
	if err != nil {
		return res, err
	}
	res.version = version
	var files []models.FileItem
	if version == 0 {
		var legacy []legacyFile
		if err := decodeSlot(slotFiles, raw, &legacy); err != nil {
			return res, err
		}
		now := time.Now().UTC()
		for _, lf := range legacy {
			// Legacy src values were in-page object URLs; the bytes are gone.
			files = append(files, models.FileItem{
				ID:        legacyID(slotFiles, lf.ID),
				UserID:    st.opts.LegacyOwnerID,
				Name:      lf.Name,
				Kind:      models.FileKind(lf.Type),
				ParentID:  legacyID(slotFiles, lf.ParentID),
				Date:      lf.Date,
				CreatedAt: now,
			})
		}
	} else if err := decodeSlot(slotFiles, raw, &files); err != nil {
		return res, err
	}
	st.s.files, res.repaired = repairFiles(files, st.logger)
	return res, nil
}

func (st *Store) loadUI() (slotLoad, error) {
	res := slotLoad{name: slotUI}
	raw, version, err := st.readSlot(slotUI)
	if err != nil {
		return res, err
	}
	res.version = version
	if version == 0 {
		var legacy []json.RawMessage
		if err := decodeSlot(slotUI, raw, &legacy); err != nil {
			return res, err
		}
		if st.opts.LegacyOwnerID == "" {
			res.repaired = len(legacy)
			return res, nil
		}
		ids := make([]string, 0, len(legacy))
		for _, id := range legacy {
			if mapped := legacyID(slotNotes, id); mapped != "" {
				ids = append(ids, mapped)
			}
		}
		st.s.ui[st.opts.LegacyOwnerID] = ids
		return res, nil
	}
	ui := map[string][]string{}
	if err := decodeSlot(slotUI, raw, &ui); err != nil {
		return res, err
	}
	if ui != nil {
		st.s.ui = ui
	}
	return res, nil
}

func (st *Store) loadRevoked() (slotLoad, error) {
	res := slotLoad{name: slotRevoked}
	raw, version, err := st.readSlot(slotRevoked)
	if err != nil {
		return res, err
	}
	res.version = version
	if version == 0 {
		return res, fmt.Errorf("slot %s: %w: unexpected array", slotRevoked, models.ErrCorruptState)
	}
	revoked := map[string]time.Time{}
	if err := decodeSlot(slotRevoked, raw, &revoked); err != nil {
		return res, err
	}
	now := time.Now()
	for id, exp := range revoked {
		if exp.Before(now) {
			delete(revoked, id)
		}
	}
	if revoked != nil {
		st.s.revoked = revoked
	}
	return res, nil
}

func dropped(logger *slog.Logger, slot, id, reason string) {
	logger.Warn("dropping invalid local record", slog.String("slot", slot), slog.String("id", id), slog.String("reason", reason))
}

func repairUsers(in []userRecord, logger *slog.Logger) ([]userRecord, int) {
	out := make([]userRecord, 0, len(in))
	seenID := map[string]bool{}
	seenEmail := map[string]bool{}
	repaired := 0
	for _, u := range in {
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		switch {
		case u.ID == "" || u.Email == "":
			dropped(logger, slotUsers, u.ID, "missing id or email")
			repaired++
			continue
		case seenID[u.ID] || seenEmail[u.Email]:
			dropped(logger, slotUsers, u.ID, "duplicate")
			repaired++
			continue
		}
		if strings.TrimSpace(u.Name) == "" {
			u.Name = u.Email
			repaired++
		}
		seenID[u.ID] = true
		seenEmail[u.Email] = true
		out = append(out, u)
	}
	return out, repaired
}

func repairTasks(in []models.Task, logger *slog.Logger) ([]models.Task, int) {
	out := make([]models.Task, 0, len(in))
	seen := map[string]bool{}
	repaired := 0
	for _, t := range in {
		switch {
		case t.ID == "" || t.UserID == "":
			dropped(logger, slotTasks, t.ID, "missing id or owner")
			repaired++
			continue
		case seen[t.ID]:
			dropped(logger, slotTasks, t.ID, "duplicate id")
			repaired++
			continue
		case strings.TrimSpace(t.Text) == "":
			dropped(logger, slotTasks, t.ID, "empty text")
			repaired++
			continue
		}
		if _, ok := models.ValidFrequencies[t.Frequency]; !ok {
			t.Frequency = models.FrequencyOnce
			repaired++
		}
		if !t.Frequency.Recurring() && t.EndDate != "" {
			t.EndDate = ""
			repaired++
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out, repaired
}

func repairNotes(in []models.Note, logger *slog.Logger) ([]models.Note, int) {
	out := make([]models.Note, 0, len(in))
	seen := map[string]bool{}
	repaired := 0
	for _, n := range in {
		if n.ID == "" || n.UserID == "" || seen[n.ID] {
			dropped(logger, slotNotes, n.ID, "missing owner or duplicate id")
			repaired++
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out, repaired
}

// repairFiles drops malformed nodes and reattaches orphans (and nodes caught
// in parent cycles) to the root.
func repairFiles(in []models.FileItem, logger *slog.Logger) ([]models.FileItem, int) {
	out := make([]models.FileItem, 0, len(in))
	seen := map[string]bool{}
	repaired := 0
	for _, f := range in {
		switch {
		case f.ID == "" || f.UserID == "" || strings.TrimSpace(f.Name) == "":
			dropped(logger, slotFiles, f.ID, "incomplete record")
			repaired++
			continue
		case f.Kind != models.KindFile && f.Kind != models.KindFolder:
			dropped(logger, slotFiles, f.ID, "unknown type")
			repaired++
			continue
		case seen[f.ID]:
			dropped(logger, slotFiles, f.ID, "duplicate id")
			repaired++
			continue
		}
		seen[f.ID] = true
		f.Media = f.Kind == models.KindFile && models.IsMediaName(f.Name)
		out = append(out, f)
	}

	folders := map[string]models.FileItem{}
	for _, f := range out {
		if f.Kind == models.KindFolder {
			folders[f.ID] = f
		}
	}
	for i := range out {
		f := &out[i]
		if f.ParentID == "" {
			continue
		}
		if !reachesRoot(*f, folders) {
			f.ParentID = ""
			repaired++
			// Keep later cycle checks consistent with the fix.
			if f.Kind == models.KindFolder {
				folders[f.ID] = *f
			}
		}
	}
	return out, repaired
}

// reachesRoot follows parent links of f and reports whether they end at the
// root through folders of the same owner without revisiting a node.
func reachesRoot(f models.FileItem, folders map[string]models.FileItem) bool {
	visited := map[string]bool{f.ID: true}
	parent := f.ParentID
	for parent != "" {
		p, ok := folders[parent]
		if !ok || p.UserID != f.UserID || visited[parent] {
			return false
		}
		visited[parent] = true
		parent = p.ParentID
	}
	return true
}
