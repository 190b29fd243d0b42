package store

import (
	"encoding/json"
	"time"

	"github.com/garyburd/redigo/redis"
	log "github.com/sirupsen/logrus"
)

// RedisCache puts a read-through Redis cache in front of a Store. Cache
// failures are logged and the backing store answers instead.
type RedisCache struct {
	Store
	pool *redis.Pool
	ttl  time.Duration
}

// NewRedisPool dials address on demand and keeps up to maxIdle
// connections.
func NewRedisPool(address string, maxIdle int) *redis.Pool {
	return redis.NewPool(func() (redis.Conn, error) {
		c, err := redis.Dial("tcp", address)
		if err != nil {
			return nil, err
		}
		return c, err
	}, maxIdle)
}

// NewRedisCache wraps backing. Entries expire after ttl.
func NewRedisCache(backing Store, pool *redis.Pool, ttl time.Duration) *RedisCache {
	return &RedisCache{Store: backing, pool: pool, ttl: ttl}
}

func cacheKey(id string) string { return "mesh:" + id }

// cachedModel is Model with its data included in the serialized form.
type cachedModel struct {
	Model
	Data []byte `json:"data"`
}

func (c *RedisCache) Save(m *Model) error {
	if err := c.Store.Save(m); err != nil {
		return err
	}
	c.put(m)
	return nil
}

func (c *RedisCache) Get(id string) (*Model, error) {
	if m, ok := c.get(id); ok {
		return m, nil
	}
	m, err := c.Store.Get(id)
	if err != nil {
		return nil, err
	}
	c.put(m)
	return m, nil
}

// Delete removes the row before evicting the cache entry, so a Get racing
// the delete cannot repopulate the cache with the removed model.
func (c *RedisCache) Delete(id string) error {
	err := c.Store.Delete(id)

	conn := c.pool.Get()
	defer conn.Close()
	if _, derr := conn.Do("DEL", cacheKey(id)); derr != nil {
		log.Warn("[Store] Couldn't evict cached model: ", derr.Error())
	}
	return err
}

// Close closes the pool and the backing store.
func (c *RedisCache) Close() error {
	if err := c.pool.Close(); err != nil {
		log.Warn("[Store] Couldn't close redis pool: ", err.Error())
	}
	return c.Store.Close()
}

func (c *RedisCache) get(id string) (*Model, bool) {
	conn := c.pool.Get()
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", cacheKey(id)))
	if err == redis.ErrNil {
		return nil, false
	}
	if err != nil {
		log.Warn("[Store] Couldn't read cached model: ", err.Error())
		return nil, false
	}
	var cm cachedModel
	if err := json.Unmarshal(data, &cm); err != nil {
		log.Warn("[Store] Couldn't unmarshal cached model: ", err.Error())
		return nil, false
	}
	m := cm.Model
	m.Data = cm.Data
	return &m, true
}

func (c *RedisCache) put(m *Model) {
	serialized, err := json.Marshal(cachedModel{Model: *m, Data: m.Data})
	if err != nil {
		log.Warn("[Store] Couldn't marshal model for cache: ", err.Error())
		return
	}
	conn := c.pool.Get()
	defer conn.Close()

	seconds := int(c.ttl / time.Second)
	if seconds <= 0 {
		_, err = conn.Do("SET", cacheKey(m.ID), serialized)
	} else {
		_, err = conn.Do("SETEX", cacheKey(m.ID), seconds, serialized)
	}
	if err != nil {
		log.Warn("[Store] Couldn't cache model: ", err.Error())
	}
}
