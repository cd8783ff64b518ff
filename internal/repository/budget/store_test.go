package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/agrirag/internal/db/redis"
)

func newStore(t *testing.T) (*Store, *mock.Client) {
	t.Helper()
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	return New(redis.NewStoreForTest(c), time.Hour, 2*time.Hour), c
}

func TestIncrBy_ArmsDailyTTL(t *testing.T) {
	s, c := newStore(t)
	key := "agrirag:budget:embedding:openai:daily:2026-10-18"

	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("INCRBY", key, "42")).
			Return(mock.Result(mock.RedisInt64(42))),
		c.EXPECT().Do(gomock.Any(), mock.Match("EXPIRE", key, "3600", "NX")).
			Return(mock.Result(mock.RedisInt64(1))),
	)

	if err := s.IncrBy(context.Background(), key, 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIncrBy_ArmsMonthlyTTL(t *testing.T) {
	s, c := newStore(t)
	key := "agrirag:budget:oracle:openai:monthly:2026-10"

	c.EXPECT().Do(gomock.Any(), mock.Match("INCRBY", key, "7")).
		Return(mock.Result(mock.RedisInt64(7)))
	c.EXPECT().Do(gomock.Any(), mock.Match("EXPIRE", key, "7200", "NX")).
		Return(mock.Result(mock.RedisInt64(1)))

	if err := s.IncrBy(context.Background(), key, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIncrBy_Error(t *testing.T) {
	s, c := newStore(t)

	c.EXPECT().Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(errors.New("readonly")))

	if err := s.IncrBy(context.Background(), "k:daily:x", 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		result  rueidis.RedisResult
		want    int64
		wantErr bool
	}{
		{"value", mock.Result(mock.RedisBlobString("1200")), 1200, false},
		{"missing", mock.Result(mock.RedisNil()), 0, false},
		{"garbage", mock.Result(mock.RedisBlobString("abc")), 0, true},
		{"network", mock.ErrorResult(errors.New("timeout")), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c := newStore(t)
			c.EXPECT().Do(gomock.Any(), mock.Match("GET", "key")).Return(tt.result)

			got, err := s.Get(context.Background(), "key")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(nil, 0, 0)
	if s.ttlFor("a:daily:b") != DefaultDailyTTL || s.ttlFor("a:monthly:b") != DefaultMonthlyTTL {
		t.Error("expected default TTLs")
	}
}
