// Command inspect is a read-only viewer for the engine's BadgerDB:
// it renders conversations and messages as tables for debugging.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type config struct {
	DBPath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
}

type conversationRow struct {
	ID             string    `json:"id"`
	UserLo         string    `json:"user_lo"`
	UserHi         string    `json:"user_hi"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type messageRow struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	AuthorID       string    `json:"author_id"`
	Kind           string    `json:"kind"`
	Body           string    `json:"body"`
	Seq            uint64    `json:"seq"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Error while reading config: ", err)
	}
	dbPath := flag.String("db", cfg.DBPath, "Path to badger DB")
	prefix := flag.String("prefix", "conv:", "Prefix to scan (conv: or msg:)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	switch {
	case strings.HasPrefix(*prefix, "conv:"):
		dumpConversations(db, *prefix)
	case strings.HasPrefix(*prefix, "msg:"):
		dumpMessages(db, *prefix)
	default:
		log.Fatalf("unsupported prefix %q", *prefix)
	}
}

func dumpConversations(db *badger.DB, prefix string) {
	color.Bold.Println("Conversations")
	table := newTable([]string{"ID", "User Lo", "User Hi", "Created", "Last Activity"})
	err := scan(db, prefix, func(value []byte) error {
		var row conversationRow
		if err := json.Unmarshal(value, &row); err != nil {
			color.Warn.Printf("skipping unreadable record: %v\n", err)
			return nil
		}
		table.Append([]string{
			shorten(row.ID),
			shorten(row.UserLo),
			shorten(row.UserHi),
			row.CreatedAt.Format(time.RFC3339),
			row.LastActivityAt.Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func dumpMessages(db *badger.DB, prefix string) {
	color.Bold.Println("Messages")
	table := newTable([]string{"Seq", "ID", "Author", "Kind", "Read", "Timestamp", "Body"})
	err := scan(db, prefix, func(value []byte) error {
		var row messageRow
		if err := json.Unmarshal(value, &row); err != nil {
			color.Warn.Printf("skipping unreadable record: %v\n", err)
			return nil
		}
		body := row.Body
		if len(body) > 48 {
			body = body[:48] + "…"
		}
		table.Append([]string{
			fmt.Sprintf("%d", row.Seq),
			shorten(row.ID),
			shorten(row.AuthorID),
			row.Kind,
			fmt.Sprintf("%t", row.Read),
			row.CreatedAt.Format("15:04:05"),
			body,
		})
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func scan(db *badger.DB, prefix string, visit func(value []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			if err := it.Item().Value(visit); err != nil {
				return err
			}
		}
		return nil
	})
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func shorten(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
