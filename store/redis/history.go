package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/chrono/history"
)

// logRecord is the stored form of a log. Output is codec-encoded.
type logRecord struct {
	Log    history.Log `json:"log"`
	Output []byte      `json:"output,omitempty"`
}

// AppendLog adds l to its job's Sorted Set.
func (s *Store) AppendLog(ctx context.Context, l *history.Log) error {
	out, err := s.encode(l.Output)
	if err != nil {
		return fmt.Errorf("chrono/redis: encode log output: %w", err)
	}
	rec := logRecord{Log: *l, Output: out}
	rec.Log.Output = nil
	member, err := marshal(rec)
	if err != nil {
		return fmt.Errorf("chrono/redis: encode log: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, logsKey(l.JobID), redis.Z{Score: score(l.ExecutedAt), Member: member})
		p.SAdd(ctx, logJobsKey, l.JobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chrono/redis: append log: %w", err)
	}
	return nil
}

// QueryLogs returns up to take logs of jobID, most recent first.
func (s *Store) QueryLogs(ctx context.Context, jobID string, take int) ([]*history.Log, error) {
	stop := int64(-1)
	if take > 0 {
		stop = int64(take - 1)
	}
	members, err := s.client.ZRevRange(ctx, logsKey(jobID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("chrono/redis: query logs: %w", err)
	}
	return s.decodeLogs(members)
}

// ListLogs returns every log, most recent first.
func (s *Store) ListLogs(ctx context.Context) ([]*history.Log, error) {
	jobs, err := s.client.SMembers(ctx, logJobsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("chrono/redis: list log jobs: %w", err)
	}
	var all []*history.Log
	for _, jobID := range jobs {
		logs, err := s.QueryLogs(ctx, jobID, 0)
		if err != nil {
			return nil, err
		}
		all = append(all, logs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ExecutedAt.After(all[j].ExecutedAt)
	})
	return all, nil
}

// PurgeLogsBefore deletes logs executed before cutoff.
func (s *Store) PurgeLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	jobs, err := s.client.SMembers(ctx, logJobsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("chrono/redis: list log jobs: %w", err)
	}
	maxScore := "(" + strconv.FormatInt(cutoff.UnixMicro(), 10)
	var total int64
	for _, jobID := range jobs {
		n, err := s.client.ZRemRangeByScore(ctx, logsKey(jobID), "-inf", maxScore).Result()
		if err != nil {
			return total, fmt.Errorf("chrono/redis: purge logs of %s: %w", jobID, err)
		}
		total += n
	}
	return total, nil
}

// PurgeLogsOverLimit keeps the newest maxPerJob logs of every job.
func (s *Store) PurgeLogsOverLimit(ctx context.Context, maxPerJob int) (int64, error) {
	if maxPerJob <= 0 {
		return 0, nil
	}
	jobs, err := s.client.SMembers(ctx, logJobsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("chrono/redis: list log jobs: %w", err)
	}
	var total int64
	for _, jobID := range jobs {
		// Ranks are ascending by time; keep the top maxPerJob.
		n, err := s.client.ZRemRangeByRank(ctx, logsKey(jobID), 0, int64(-maxPerJob-1)).Result()
		if err != nil {
			return total, fmt.Errorf("chrono/redis: trim logs of %s: %w", jobID, err)
		}
		total += n
	}
	return total, nil
}

func (s *Store) decodeLogs(members []string) ([]*history.Log, error) {
	logs := make([]*history.Log, 0, len(members))
	for _, m := range members {
		var rec logRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			return nil, fmt.Errorf("chrono/redis: decode log: %w", err)
		}
		l := rec.Log
		l.Output = s.wrap(rec.Output)
		logs = append(logs, &l)
	}
	return logs, nil
}
