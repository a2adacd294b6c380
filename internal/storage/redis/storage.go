package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openplace/pixelfield/internal/model"
	"github.com/openplace/pixelfield/internal/storage"
)

// upsertScript applies a cell only when its write time is strictly greater
// than the stored one. KEYS[1] is the pixels hash, KEYS[2] the write-time
// hash; ARGV[1] is the cell field, ARGV[2] the cell JSON, ARGV[3] the write
// time in unix nanoseconds. Returns 1 when applied, 0 when stale.
var upsertScript = redis.NewScript(`
local t = redis.call('HGET', KEYS[2], ARGV[1])
if t and tonumber(ARGV[3]) <= tonumber(t) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// cellRecord is the stored JSON shape of a cell. The write time is kept in
// unix nanoseconds to match the write-time hash exactly.
type cellRecord struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Color     string `json:"color"`
	Owner     string `json:"owner"`
	WriteNano int64  `json:"write_nano"`
}

func toRecord(cell model.Cell) cellRecord {
	return cellRecord{
		X:         cell.X,
		Y:         cell.Y,
		Color:     cell.Color,
		Owner:     string(cell.Owner),
		WriteNano: cell.WriteTime.UnixNano(),
	}
}

func (r cellRecord) toCell() model.Cell {
	return model.Cell{
		X:         r.X,
		Y:         r.Y,
		Color:     r.Color,
		Owner:     model.ActorID(r.Owner),
		WriteTime: time.Unix(0, r.WriteNano).UTC(),
	}
}

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Actor operations

func (s *Storage) CreateActor(ctx context.Context, actor *model.Actor) error {
	// SETNX on the name index is the uniqueness gate: exactly one of two
	// concurrent creates with the same name wins it.
	ok, err := s.client.SetNX(ctx, nameIndexKey(actor.DisplayName), string(actor.ID), 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrNameTaken
	}

	data, err := json.Marshal(actor)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, actorKey(actor.ID), data, 0).Err()
}

func (s *Storage) GetActor(ctx context.Context, id model.ActorID) (*model.Actor, error) {
	data, err := s.client.Get(ctx, actorKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrActorNotFound
		}
		return nil, err
	}

	var actor model.Actor
	if err := json.Unmarshal(data, &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

func (s *Storage) RenameActor(ctx context.Context, id model.ActorID, displayName string) error {
	actor, err := s.GetActor(ctx, id)
	if err != nil {
		return err
	}
	if actor.DisplayName == displayName {
		return nil
	}

	ok, err := s.client.SetNX(ctx, nameIndexKey(displayName), string(id), 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		// The name may already belong to this actor from a previous rename
		holder, err := s.client.Get(ctx, nameIndexKey(displayName)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if holder != string(id) {
			return model.ErrNameTaken
		}
	}

	oldName := actor.DisplayName
	actor.DisplayName = displayName
	data, err := json.Marshal(actor)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, actorKey(id), data, 0)
	pipe.Del(ctx, nameIndexKey(oldName))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) ToggleActorBan(ctx context.Context, id model.ActorID) (bool, error) {
	actor, err := s.GetActor(ctx, id)
	if err != nil {
		return false, err
	}

	actor.Banned = !actor.Banned
	data, err := json.Marshal(actor)
	if err != nil {
		return false, err
	}
	if err := s.client.Set(ctx, actorKey(id), data, 0).Err(); err != nil {
		return false, err
	}
	return actor.Banned, nil
}

// Write-history operations

func (s *Storage) GetActorLastWrite(ctx context.Context, id model.ActorID) (time.Time, error) {
	val, err := s.client.HGet(ctx, lastWritesKey(), string(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}

	nano, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nano).UTC(), nil
}

func (s *Storage) SetActorLastWrite(ctx context.Context, id model.ActorID, t time.Time) error {
	return s.client.HSet(ctx, lastWritesKey(), string(id), strconv.FormatInt(t.UnixNano(), 10)).Err()
}

// Admin operations

func (s *Storage) SaveAdmin(ctx context.Context, admin *model.Admin) error {
	data, err := json.Marshal(admin)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, adminKey(admin.DisplayName), data, 0).Err()
}

func (s *Storage) GetAdminByName(ctx context.Context, displayName string) (*model.Admin, error) {
	data, err := s.client.Get(ctx, adminKey(displayName)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAdminNotFound
		}
		return nil, err
	}

	var admin model.Admin
	if err := json.Unmarshal(data, &admin); err != nil {
		return nil, err
	}
	return &admin, nil
}

// Pixel operations

func (s *Storage) GetPixels(ctx context.Context) ([]model.Cell, error) {
	values, err := s.client.HGetAll(ctx, pixelsKey()).Result()
	if err != nil {
		return nil, err
	}

	cells := make([]model.Cell, 0, len(values))
	for _, val := range values {
		var rec cellRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			continue // Skip invalid data
		}
		cells = append(cells, rec.toCell())
	}
	return cells, nil
}

func (s *Storage) GetPixel(ctx context.Context, x, y int) (*model.Cell, error) {
	val, err := s.client.HGet(ctx, pixelsKey(), cellField(x, y)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPixelNotFound
		}
		return nil, err
	}

	var rec cellRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, err
	}
	cell := rec.toCell()
	return &cell, nil
}

func (s *Storage) UpsertPixelIfNewer(ctx context.Context, cell model.Cell) (bool, error) {
	data, err := json.Marshal(toRecord(cell))
	if err != nil {
		return false, err
	}

	res, err := upsertScript.Run(ctx, s.client,
		[]string{pixelsKey(), pixelTimesKey()},
		cellField(cell.X, cell.Y),
		string(data),
		strconv.FormatInt(cell.WriteTime.UnixNano(), 10),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *Storage) ResetField(ctx context.Context) error {
	return s.client.Del(ctx, pixelsKey(), pixelTimesKey(), lastWritesKey()).Err()
}
