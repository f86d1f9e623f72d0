package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bondedhq/link-server/internal/model"
	"github.com/bondedhq/link-server/internal/store"
)

//go:embed schema.sql
var schemaFS embed.FS

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Profiles() store.Profiles { return &profiles{db: s.db} }
func (s *pgStore) States() store.States     { return &states{db: s.db} }
func (s *pgStore) Runs() store.Runs         { return &runs{db: s.db} }
func (s *pgStore) Targets() store.Targets   { return &targets{db: s.db} }
func (s *pgStore) Facts() store.Facts       { return &facts{db: s.db} }
func (s *pgStore) Channels() store.Channels { return &channels{db: s.db} }
func (s *pgStore) Messages() store.Messages { return &messages{db: s.db} }
func (s *pgStore) Forums() store.Forums     { return &forums{db: s.db} }

// HealthPing implements health.HealthPinger for Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Bootstrap applies the embedded schema. Statements are idempotent so this is
// safe to run on every startup.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	ddl, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(ddl))
	return err
}

// mapErr translates driver errors into the store's sentinel errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", model.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func marshalJSON(v interface{}) interface{} {
	b, err := json.Marshal(v)
	if err != nil || len(b) == 0 || string(b) == "null" {
		return nil
	}
	return b
}

func unmarshalJSON(src sql.NullString, dst interface{}) {
	if src.Valid && src.String != "" {
		_ = json.Unmarshal([]byte(src.String), dst)
	}
}

// --- Profiles ---
type profiles struct{ db *sql.DB }

func (p *profiles) Create(ctx context.Context, m *model.Profile) (*model.Profile, error) {
	var created time.Time
	row := p.db.QueryRowContext(ctx, `
        INSERT INTO profiles (user_id, university_id, full_name, username, major, bio, interests, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING creation_time
    `, m.UserID, m.UniversityID, m.FullName, m.Username, m.Major, m.Bio, marshalJSON(m.Interests), m.Active)
	if err := row.Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.CreationTime = created
	return &out, nil
}

func scanProfile(row interface{ Scan(...interface{}) error }) (*model.Profile, error) {
	var out model.Profile
	var interests sql.NullString
	if err := row.Scan(&out.UserID, &out.UniversityID, &out.FullName, &out.Username,
		&out.Major, &out.Bio, &interests, &out.Active, &out.CreationTime); err != nil {
		return nil, mapErr(err)
	}
	unmarshalJSON(interests, &out.Interests)
	return &out, nil
}

const profileCols = `user_id, university_id, full_name, username, major, bio, interests, active, creation_time`

func (p *profiles) Get(ctx context.Context, userID string) (*model.Profile, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM profiles WHERE user_id=$1`, userID)
	return scanProfile(row)
}

func (p *profiles) listQuery(ctx context.Context, query string, args ...interface{}) ([]*model.Profile, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Profile
	for rows.Next() {
		m, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *profiles) ListActive(ctx context.Context, universityID string, limit int) ([]*model.Profile, error) {
	return p.listQuery(ctx, `
        SELECT `+profileCols+` FROM profiles
        WHERE university_id=$1 AND active ORDER BY creation_time DESC LIMIT $2
    `, universityID, limit)
}

func (p *profiles) Friends(ctx context.Context, userID string) ([]*model.Profile, error) {
	return p.listQuery(ctx, `
        SELECT `+profileCols+` FROM profiles
        WHERE user_id IN (SELECT friend_id FROM friendships WHERE user_id=$1)
    `, userID)
}

func (p *profiles) Classmates(ctx context.Context, userID string) ([]*model.Profile, error) {
	return p.listQuery(ctx, `
        SELECT DISTINCT `+profileCols+` FROM profiles
        WHERE user_id IN (
            SELECT e2.user_id FROM enrollments e1
            JOIN enrollments e2 ON e1.course_id = e2.course_id
            WHERE e1.user_id=$1 AND e2.user_id<>$1
        )
    `, userID)
}

func (p *profiles) SearchText(ctx context.Context, universityID, needle string, limit int) ([]*model.Profile, error) {
	pattern := "%" + needle + "%"
	return p.listQuery(ctx, `
        SELECT `+profileCols+` FROM profiles
        WHERE university_id=$1 AND active AND (
            full_name ILIKE $2 OR bio ILIKE $2 OR major ILIKE $2 OR interests::text ILIKE $2
        )
        LIMIT $3
    `, universityID, pattern, limit)
}

func (p *profiles) AddFriend(ctx context.Context, userID, friendID string) error {
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO friendships (user_id, friend_id) VALUES ($1,$2)
        ON CONFLICT DO NOTHING
    `, userID, friendID)
	return mapErr(err)
}

func (p *profiles) AddEnrollment(ctx context.Context, userID, courseID string) error {
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO enrollments (user_id, course_id) VALUES ($1,$2)
        ON CONFLICT DO NOTHING
    `, userID, courseID)
	return mapErr(err)
}

// --- States ---
type states struct{ db *sql.DB }

const stateCols = `state_id, user_id, channel_id, mode, active_task, pending_consents, resolved_tasks, creation_time, update_time`

func scanState(row interface{ Scan(...interface{}) error }) (*model.ConversationState, error) {
	var out model.ConversationState
	var task, consents, resolved sql.NullString
	if err := row.Scan(&out.StateID, &out.UserID, &out.ChannelID, &out.Mode,
		&task, &consents, &resolved, &out.CreationTime, &out.UpdateTime); err != nil {
		return nil, mapErr(err)
	}
	unmarshalJSON(task, &out.ActiveTask)
	unmarshalJSON(consents, &out.PendingConsents)
	unmarshalJSON(resolved, &out.ResolvedTasks)
	return &out, nil
}

func (s *states) GetOrCreate(ctx context.Context, userID, channelID string) (*model.ConversationState, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+stateCols+` FROM conversation_states WHERE user_id=$1 AND channel_id=$2
    `, userID, channelID)
	st, err := scanState(row)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	id := uuid.New().String()
	var created time.Time
	if err := s.db.QueryRowContext(ctx, `
        INSERT INTO conversation_states (state_id, user_id, channel_id, mode)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, channel_id) DO UPDATE SET user_id=EXCLUDED.user_id
        RETURNING creation_time
    `, id, userID, channelID, model.ModeIdle).Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	row = s.db.QueryRowContext(ctx, `
        SELECT `+stateCols+` FROM conversation_states WHERE user_id=$1 AND channel_id=$2
    `, userID, channelID)
	return scanState(row)
}

func (s *states) Update(ctx context.Context, st *model.ConversationState) (*model.ConversationState, error) {
	var updated time.Time
	row := s.db.QueryRowContext(ctx, `
        UPDATE conversation_states
        SET mode=$1, active_task=$2, pending_consents=$3, resolved_tasks=$4, update_time=now()
        WHERE state_id=$5
        RETURNING update_time
    `, st.Mode, marshalJSON(st.ActiveTask), marshalJSON(st.PendingConsents), marshalJSON(st.ResolvedTasks), st.StateID)
	if err := row.Scan(&updated); err != nil {
		return nil, mapErr(err)
	}
	out := *st
	out.UpdateTime = updated
	return &out, nil
}

// --- Runs ---
type runs struct{ db *sql.DB }

const runCols = `run_id, requester_id, university_id, channel_id, query, intent, tags, status,
        batch_number, expansions, batch_size, hard_cap, target_threshold,
        replies_received, positive_replies, confidence, suggested_candidate_id,
        forum_post_id, forum_posted_at, creation_time, update_time`

func scanRun(row interface{ Scan(...interface{}) error }) (*model.OutreachRun, error) {
	var out model.OutreachRun
	var tags sql.NullString
	if err := row.Scan(&out.RunID, &out.RequesterID, &out.UniversityID, &out.ChannelID,
		&out.Query, &out.Intent, &tags, &out.Status,
		&out.BatchNumber, &out.Expansions, &out.BatchSize, &out.HardCap, &out.TargetThreshold,
		&out.RepliesReceived, &out.PositiveReplies, &out.Confidence, &out.SuggestedCandidate,
		&out.ForumPostID, &out.ForumPostedAt, &out.CreationTime, &out.UpdateTime); err != nil {
		return nil, mapErr(err)
	}
	unmarshalJSON(tags, &out.Tags)
	return &out, nil
}

func (r *runs) Create(ctx context.Context, m *model.OutreachRun) (*model.OutreachRun, error) {
	id := m.RunID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := r.db.QueryRowContext(ctx, `
        INSERT INTO outreach_runs (
            run_id, requester_id, university_id, channel_id, query, normalized_query,
            intent, tags, status, batch_number, expansions, batch_size, hard_cap,
            target_threshold, replies_received, positive_replies
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        RETURNING creation_time
    `, id, m.RequesterID, m.UniversityID, m.ChannelID, m.Query, store.NormalizeQuery(m.Query),
		m.Intent, marshalJSON(m.Tags), m.Status, m.BatchNumber, m.Expansions, m.BatchSize,
		m.HardCap, m.TargetThreshold, m.RepliesReceived, m.PositiveReplies)
	if err := row.Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.RunID = id
	out.CreationTime = created
	out.UpdateTime = created
	return &out, nil
}

func (r *runs) Get(ctx context.Context, runID string) (*model.OutreachRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM outreach_runs WHERE run_id=$1`, runID)
	return scanRun(row)
}

func (r *runs) Update(ctx context.Context, m *model.OutreachRun) (*model.OutreachRun, error) {
	var updated time.Time
	row := r.db.QueryRowContext(ctx, `
        UPDATE outreach_runs
        SET status=$1, batch_number=$2, expansions=$3, replies_received=$4, positive_replies=$5,
            confidence=$6, suggested_candidate_id=$7, forum_post_id=$8, forum_posted_at=$9,
            update_time=now()
        WHERE run_id=$10
        RETURNING update_time
    `, m.Status, m.BatchNumber, m.Expansions, m.RepliesReceived, m.PositiveReplies,
		m.Confidence, m.SuggestedCandidate, m.ForumPostID, m.ForumPostedAt, m.RunID)
	if err := row.Scan(&updated); err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.UpdateTime = updated
	return &out, nil
}

func (r *runs) LatestActiveByRequester(ctx context.Context, requesterID string) (*model.OutreachRun, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT `+runCols+` FROM outreach_runs
        WHERE requester_id=$1 AND status NOT IN ('done','expired','failed')
        ORDER BY creation_time DESC LIMIT 1
    `, requesterID)
	return scanRun(row)
}

// --- Targets ---
type targets struct{ db *sql.DB }

const targetCols = `target_id, run_id, user_id, channel_id, message_id, reply_message_id,
        source_comment_id, reason, status, sent_at, update_time`

func scanTarget(row interface{ Scan(...interface{}) error }) (*model.OutreachTarget, error) {
	var out model.OutreachTarget
	if err := row.Scan(&out.TargetID, &out.RunID, &out.UserID, &out.ChannelID, &out.MessageID,
		&out.ReplyMessageID, &out.SourceCommentID, &out.Reason, &out.Status,
		&out.SentAt, &out.UpdateTime); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (t *targets) Create(ctx context.Context, m *model.OutreachTarget) (*model.OutreachTarget, error) {
	id := m.TargetID
	if id == "" {
		id = uuid.New().String()
	}
	var sent time.Time
	row := t.db.QueryRowContext(ctx, `
        INSERT INTO outreach_targets (target_id, run_id, user_id, channel_id, message_id, source_comment_id, reason, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING sent_at
    `, id, m.RunID, m.UserID, m.ChannelID, m.MessageID, m.SourceCommentID, m.Reason, m.Status)
	if err := row.Scan(&sent); err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.TargetID = id
	out.SentAt = sent
	out.UpdateTime = sent
	return &out, nil
}

func (t *targets) ListByRun(ctx context.Context, runID string) ([]*model.OutreachTarget, error) {
	rows, err := t.db.QueryContext(ctx, `
        SELECT `+targetCols+` FROM outreach_targets WHERE run_id=$1 ORDER BY sent_at
    `, runID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.OutreachTarget
	for rows.Next() {
		m, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *targets) Update(ctx context.Context, m *model.OutreachTarget) (*model.OutreachTarget, error) {
	var updated time.Time
	row := t.db.QueryRowContext(ctx, `
        UPDATE outreach_targets
        SET status=$1, reply_message_id=$2, update_time=now()
        WHERE target_id=$3
        RETURNING update_time
    `, m.Status, m.ReplyMessageID, m.TargetID)
	if err := row.Scan(&updated); err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.UpdateTime = updated
	return &out, nil
}

func (t *targets) RecentTargetUserIDs(ctx context.Context, requesterID string, since time.Time) ([]string, error) {
	rows, err := t.db.QueryContext(ctx, `
        SELECT DISTINCT ot.user_id FROM outreach_targets ot
        JOIN outreach_runs r ON r.run_id = ot.run_id
        WHERE r.requester_id=$1 AND ot.sent_at >= $2
    `, requesterID, since)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- Facts ---
type facts struct{ db *sql.DB }

const factCols = `fact_id, university_id, subject_type, subject_id, category, fact_key, fact_value,
        confidence, source, source_ref, consent_status, verified_at, expires_at`

func scanFact(row interface{ Scan(...interface{}) error }) (*model.VerifiedFact, error) {
	var out model.VerifiedFact
	if err := row.Scan(&out.FactID, &out.UniversityID, &out.SubjectType, &out.SubjectID,
		&out.Category, &out.Key, &out.Value, &out.Confidence, &out.Source, &out.SourceRef,
		&out.ConsentStatus, &out.VerifiedAt, &out.ExpiresAt); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (f *facts) Create(ctx context.Context, m *model.VerifiedFact) (*model.VerifiedFact, error) {
	id := m.FactID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := f.db.ExecContext(ctx, `
        INSERT INTO verified_facts (
            fact_id, university_id, subject_type, subject_id, category, fact_key, fact_value,
            confidence, source, source_ref, consent_status, verified_at, expires_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    `, id, m.UniversityID, m.SubjectType, m.SubjectID, m.Category, m.Key, m.Value,
		m.Confidence, m.Source, m.SourceRef, m.ConsentStatus, m.VerifiedAt, m.ExpiresAt)
	if err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.FactID = id
	return &out, nil
}

func (f *facts) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := f.db.ExecContext(ctx, `DELETE FROM verified_facts WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, mapErr(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (f *facts) listQuery(ctx context.Context, query string, args ...interface{}) ([]*model.VerifiedFact, error) {
	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.VerifiedFact
	for rows.Next() {
		m, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (f *facts) Search(ctx context.Context, universityID, needle string, limit int) ([]*model.VerifiedFact, error) {
	pattern := "%" + needle + "%"
	return f.listQuery(ctx, `
        SELECT `+factCols+` FROM verified_facts
        WHERE university_id=$1 AND (fact_key ILIKE $2 OR fact_value ILIKE $2)
        ORDER BY verified_at DESC LIMIT $3
    `, universityID, pattern, limit)
}

func (f *facts) List(ctx context.Context, universityID string, limit int) ([]*model.VerifiedFact, error) {
	return f.listQuery(ctx, `
        SELECT `+factCols+` FROM verified_facts
        WHERE university_id=$1 ORDER BY verified_at DESC LIMIT $2
    `, universityID, limit)
}

// --- Channels ---
type channels struct{ db *sql.DB }

func scanChannel(row interface{ Scan(...interface{}) error }) (*model.Channel, error) {
	var out model.Channel
	var participants sql.NullString
	var pairKey sql.NullString
	if err := row.Scan(&out.ChannelID, &out.Kind, &participants, &pairKey, &out.CreationTime); err != nil {
		return nil, mapErr(err)
	}
	unmarshalJSON(participants, &out.Participants)
	return &out, nil
}

const channelCols = `channel_id, kind, participants, pair_key, creation_time`

func (c *channels) Create(ctx context.Context, m *model.Channel) (*model.Channel, error) {
	id := m.ChannelID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO channels (channel_id, kind, participants) VALUES ($1,$2,$3)
        RETURNING creation_time
    `, id, m.Kind, marshalJSON(m.Participants))
	if err := row.Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.ChannelID = id
	out.CreationTime = created
	return &out, nil
}

func (c *channels) Get(ctx context.Context, channelID string) (*model.Channel, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+channelCols+` FROM channels WHERE channel_id=$1`, channelID)
	return scanChannel(row)
}

func (c *channels) getOrCreateKeyed(ctx context.Context, kind model.ChannelKind, pairKey string, participants []string) (*model.Channel, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+channelCols+` FROM channels WHERE pair_key=$1`, pairKey)
	ch, err := scanChannel(row)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	id := uuid.New().String()
	if _, err := c.db.ExecContext(ctx, `
        INSERT INTO channels (channel_id, kind, participants, pair_key) VALUES ($1,$2,$3,$4)
        ON CONFLICT (pair_key) WHERE pair_key IS NOT NULL DO NOTHING
    `, id, kind, marshalJSON(participants), pairKey); err != nil {
		return nil, mapErr(err)
	}
	row = c.db.QueryRowContext(ctx, `SELECT `+channelCols+` FROM channels WHERE pair_key=$1`, pairKey)
	return scanChannel(row)
}

func (c *channels) GetOrCreateDM(ctx context.Context, userA, userB string) (*model.Channel, error) {
	return c.getOrCreateKeyed(ctx, model.ChannelDM, store.DMKey(userA, userB), []string{userA, userB})
}

func (c *channels) GetOrCreateAssistant(ctx context.Context, userID string) (*model.Channel, error) {
	return c.getOrCreateKeyed(ctx, model.ChannelAssistant, store.AssistantKey(userID), []string{userID})
}

// --- Messages ---
type messages struct{ db *sql.DB }

const messageCols = `message_id, channel_id, sender_id, body, meta, sent_at`

func scanMessage(row interface{ Scan(...interface{}) error }) (*model.Message, error) {
	var out model.Message
	var meta sql.NullString
	if err := row.Scan(&out.MessageID, &out.ChannelID, &out.SenderID, &out.Body, &meta, &out.SentAt); err != nil {
		return nil, mapErr(err)
	}
	unmarshalJSON(meta, &out.Meta)
	return &out, nil
}

func (m *messages) Insert(ctx context.Context, msg *model.Message) (*model.Message, error) {
	id := msg.MessageID
	if id == "" {
		id = uuid.New().String()
	}
	var sent time.Time
	row := m.db.QueryRowContext(ctx, `
        INSERT INTO messages (message_id, channel_id, sender_id, body, meta)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING sent_at
    `, id, msg.ChannelID, msg.SenderID, msg.Body, marshalJSON(msg.Meta))
	if err := row.Scan(&sent); err != nil {
		return nil, mapErr(err)
	}
	out := *msg
	out.MessageID = id
	out.SentAt = sent
	return &out, nil
}

func (m *messages) Get(ctx context.Context, messageID string) (*model.Message, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+messageCols+` FROM messages WHERE message_id=$1`, messageID)
	return scanMessage(row)
}

func (m *messages) ListSince(ctx context.Context, channelID string, after time.Time, sender string, limit int) ([]*model.Message, error) {
	query := `SELECT ` + messageCols + ` FROM messages WHERE channel_id=$1 AND sent_at > $2`
	args := []interface{}{channelID, after}
	if sender != "" {
		query += ` AND sender_id=$3`
		args = append(args, sender)
	}
	query += fmt.Sprintf(` ORDER BY sent_at LIMIT %d`, limit)
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// --- Forums ---
type forums struct{ db *sql.DB }

func (f *forums) CreatePost(ctx context.Context, p *model.ForumPost) (*model.ForumPost, error) {
	id := p.PostID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := f.db.QueryRowContext(ctx, `
        INSERT INTO forum_posts (post_id, university_id, author_id, title, body, tags, anonymous)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING creation_time
    `, id, p.UniversityID, p.AuthorID, p.Title, p.Body, marshalJSON(p.Tags), p.Anonymous)
	if err := row.Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	out := *p
	out.PostID = id
	out.CreationTime = created
	return &out, nil
}

func (f *forums) GetPost(ctx context.Context, postID string) (*model.ForumPost, error) {
	var out model.ForumPost
	var tags sql.NullString
	row := f.db.QueryRowContext(ctx, `
        SELECT post_id, university_id, author_id, title, body, tags, anonymous, creation_time
        FROM forum_posts WHERE post_id=$1
    `, postID)
	if err := row.Scan(&out.PostID, &out.UniversityID, &out.AuthorID, &out.Title, &out.Body,
		&tags, &out.Anonymous, &out.CreationTime); err != nil {
		return nil, mapErr(err)
	}
	unmarshalJSON(tags, &out.Tags)
	return &out, nil
}

func (f *forums) AddComment(ctx context.Context, c *model.ForumComment) (*model.ForumComment, error) {
	id := c.CommentID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := f.db.QueryRowContext(ctx, `
        INSERT INTO forum_comments (comment_id, post_id, author_id, body)
        VALUES ($1,$2,$3,$4)
        RETURNING creation_time
    `, id, c.PostID, c.AuthorID, c.Body)
	if err := row.Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	out := *c
	out.CommentID = id
	out.CreationTime = created
	return &out, nil
}

func (f *forums) ListCommentsSince(ctx context.Context, postID string, after time.Time) ([]*model.ForumComment, error) {
	rows, err := f.db.QueryContext(ctx, `
        SELECT comment_id, post_id, author_id, body, creation_time
        FROM forum_comments WHERE post_id=$1 AND creation_time > $2
        ORDER BY creation_time
    `, postID, after)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.ForumComment
	for rows.Next() {
		var c model.ForumComment
		if err := rows.Scan(&c.CommentID, &c.PostID, &c.AuthorID, &c.Body, &c.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
