package turnlog

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig carries the connection settings for the Supabase sink.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Table          string
}

// SupabaseSink appends records as rows of a Supabase table.
type SupabaseSink struct {
	client *supabase.Client
	table  string
}

// NewSupabaseSink builds the sink or fails when the project is unreachable.
func NewSupabaseSink(cfg SupabaseConfig) (*SupabaseSink, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: URL and service role key required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseSink{client: client, table: cfg.Table}, nil
}

// Append inserts one record. The table schema mirrors Record's json tags.
func (s *SupabaseSink) Append(_ context.Context, rec Record) error {
	_, _, err := s.client.From(s.table).Insert(rec, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("insert turn record: %w", err)
	}
	return nil
}
