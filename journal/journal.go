// Package journal records cache decisions in a SQLite database so runs can
// be compared after the fact.
package journal

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/symtrace/executor"
	"github.com/chazu/symtrace/symbolic"
)

var log = commonlog.GetLogger("symtrace.journal")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id      TEXT PRIMARY KEY,
	program TEXT NOT NULL,
	started TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	session  TEXT NOT NULL REFERENCES sessions(id),
	seq      INTEGER NOT NULL,
	at       TEXT NOT NULL,
	kind     TEXT NOT NULL,
	code     TEXT NOT NULL,
	reason   TEXT NOT NULL DEFAULT '',
	break_at INTEGER NOT NULL DEFAULT -1,
	ir       BLOB,
	PRIMARY KEY (session, seq)
);
CREATE INDEX IF NOT EXISTS events_code ON events(session, code);
`

// Journal appends the events of one session to a database. It is safe for
// concurrent use.
type Journal struct {
	db      *sql.DB
	path    string
	session string

	mu  sync.Mutex
	seq int64
}

// Open opens (creating if needed) the journal at path and starts a new
// session for program.
func Open(path, program string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "journal: opening database")
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "journal: setting busy timeout")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "journal: creating tables")
	}

	j := &Journal{db: db, path: path, session: uuid.New().String()}
	_, err = db.Exec("INSERT INTO sessions (id, program, started) VALUES (?, ?, ?)",
		j.session, program, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "journal: starting session")
	}
	log.Infof("journal %s: session %s", path, j.session)
	return j, nil
}

// Session returns the id of the current session.
func (j *Journal) Session() string {
	return j.session
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one cache event. Translations carry their IR.
func (j *Journal) Record(ev executor.Event) error {
	var ir []byte
	if ev.IR != nil {
		data, err := symbolic.MarshalIR(ev.IR)
		if err != nil {
			return errors.Wrapf(err, "journal: encoding IR of %s", ev.Code)
		}
		ir = data
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	_, err := j.db.Exec(
		"INSERT INTO events (session, seq, at, kind, code, reason, break_at, ir) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		j.session, j.seq, time.Now().UTC().Format(time.RFC3339Nano),
		string(ev.Kind), ev.Code, ev.Reason, ev.BreakAt, ir,
	)
	if err != nil {
		return errors.Wrapf(err, "journal: recording %s event for %s", ev.Kind, ev.Code)
	}
	return nil
}

// Observe is Record for use as a cache observer. Failures are logged.
func (j *Journal) Observe(ev executor.Event) {
	if err := j.Record(ev); err != nil {
		log.Errorf("%v", err)
	}
}

// CodeSummary counts the events of one code object.
type CodeSummary struct {
	Code         string
	Hits         int
	Translations int
	Skips        int
	BailOuts     int
	Reasons      []string // distinct bail-out reasons
}

// Summary aggregates a session.
type Summary struct {
	Session string
	Events  int
	Codes   []CodeSummary
}

// Summary aggregates the events of the current session per code object,
// ordered by code name.
func (j *Journal) Summary() (*Summary, error) {
	rows, err := j.db.Query(
		"SELECT code, kind, reason, COUNT(*) FROM events WHERE session = ? GROUP BY code, kind, reason",
		j.session,
	)
	if err != nil {
		return nil, errors.Wrap(err, "journal: querying summary")
	}
	defer rows.Close()

	s := &Summary{Session: j.session}
	byCode := make(map[string]*CodeSummary)
	for rows.Next() {
		var code, kind, reason string
		var n int
		if err := rows.Scan(&code, &kind, &reason, &n); err != nil {
			return nil, errors.Wrap(err, "journal: reading summary")
		}
		cs, ok := byCode[code]
		if !ok {
			cs = &CodeSummary{Code: code}
			byCode[code] = cs
		}
		switch executor.EventKind(kind) {
		case executor.EventHit:
			cs.Hits += n
		case executor.EventTranslate:
			cs.Translations += n
		case executor.EventSkip:
			cs.Skips += n
		case executor.EventBailOut:
			cs.BailOuts += n
			if reason != "" {
				cs.Reasons = append(cs.Reasons, reason)
			}
		}
		s.Events += n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "journal: reading summary")
	}

	for _, cs := range byCode {
		sort.Strings(cs.Reasons)
		s.Codes = append(s.Codes, *cs)
	}
	sort.Slice(s.Codes, func(a, b int) bool { return s.Codes[a].Code < s.Codes[b].Code })
	return s, nil
}

// Translations returns the IRs recorded for code in the current session,
// in the order they were translated.
func (j *Journal) Translations(code string) ([]*symbolic.StatementIR, error) {
	rows, err := j.db.Query(
		"SELECT ir FROM events WHERE session = ? AND code = ? AND kind = ? AND ir IS NOT NULL ORDER BY seq",
		j.session, code, string(executor.EventTranslate),
	)
	if err != nil {
		return nil, errors.Wrap(err, "journal: querying translations")
	}
	defer rows.Close()

	var irs []*symbolic.StatementIR
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "journal: reading translation")
		}
		ir, err := symbolic.UnmarshalIR(data)
		if err != nil {
			return nil, err
		}
		irs = append(irs, ir)
	}
	return irs, rows.Err()
}

// String renders the summary as a table.
func (s *Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "session %s: %d events\n", s.Session, s.Events)
	for _, c := range s.Codes {
		fmt.Fprintf(&sb, "  %-20s hits=%d translations=%d skips=%d bailouts=%d\n",
			c.Code, c.Hits, c.Translations, c.Skips, c.BailOuts)
		for _, r := range c.Reasons {
			fmt.Fprintf(&sb, "    %s\n", r)
		}
	}
	return sb.String()
}
