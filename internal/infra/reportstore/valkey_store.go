package reportstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
)

// ValkeyStore keeps each report as a JSON string and indexes them per account
// in a sorted set scored by creation time.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore wraps a connected client.
func NewValkeyStore(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "xray"
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

func (s *ValkeyStore) Save(ctx context.Context, report diagnosis.Report, ttl time.Duration) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	set := s.client.B().Set().Key(s.reportKey(report.ID)).Value(string(payload))
	var setCmd valkey.Completed
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		setCmd = set.Ex(ttl).Build()
	} else {
		setCmd = set.Build()
	}
	index := s.indexKey(report.AccountID)
	cmds := []valkey.Completed{
		setCmd,
		s.client.B().Zadd().Key(index).ScoreMember().ScoreMember(float64(report.CreatedAt.UnixMilli()), report.ID.String()).Build(),
	}
	if ttl > 0 {
		cmds = append(cmds, s.client.B().Expire().Key(index).Seconds(int64(ttl/time.Second)).Build())
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (s *ValkeyStore) Get(ctx context.Context, id uuid.UUID) (diagnosis.Report, bool, error) {
	payload, err := s.client.Do(ctx, s.client.B().Get().Key(s.reportKey(id)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return diagnosis.Report{}, false, nil
		}
		return diagnosis.Report{}, false, err
	}
	var report diagnosis.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return diagnosis.Report{}, false, err
	}
	return report, true, nil
}

// ListByAccount reads the index newest first and prunes members whose report
// already expired.
func (s *ValkeyStore) ListByAccount(ctx context.Context, accountID int64, limit int) ([]diagnosis.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	index := s.indexKey(accountID)
	ids, err := s.client.Do(ctx, s.client.B().Zrevrange().Key(index).Start(0).Stop(int64(limit-1)).Build()).AsStrSlice()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return []diagnosis.Report{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []diagnosis.Report{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + ":report:" + id
	}
	values, err := s.client.Do(ctx, s.client.B().Mget().Key(keys...).Build()).ToArray()
	if err != nil {
		return nil, err
	}

	out := make([]diagnosis.Report, 0, len(values))
	var stale []string
	for i, value := range values {
		payload, err := value.ToString()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, err
		}
		var report diagnosis.Report
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			return nil, fmt.Errorf("decode report %s: %w", ids[i], err)
		}
		out = append(out, report)
	}
	if len(stale) > 0 {
		_ = s.client.Do(ctx, s.client.B().Zrem().Key(index).Member(stale...).Build()).Error()
	}
	return out, nil
}

func (s *ValkeyStore) reportKey(id uuid.UUID) string {
	return s.prefix + ":report:" + id.String()
}

func (s *ValkeyStore) indexKey(accountID int64) string {
	return fmt.Sprintf("%s:account:%d:reports", s.prefix, accountID)
}

var _ diagnosis.ReportStore = (*ValkeyStore)(nil)
