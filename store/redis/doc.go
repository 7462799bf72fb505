// Package redis implements store.Store on Redis for deployments that
// already run one. Logs live in per-job Sorted Sets scored by execution
// time, the chain queue in Lists, journal entries in a Hash per job ordered
// by a List of request IDs, dead letters in a Hash indexed by Sorted Sets. Entities are JSON envelopes; job inputs and
// outputs inside them go through a configurable codec.
//
// The caller owns the Redis client lifecycle:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client, redisstore.WithCodec(codec.Msgpack{}))
//	if err := s.Ping(ctx); err != nil { ... }
package redis
