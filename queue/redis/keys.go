package redis

import "strings"

// The claim and enqueue scripts derive message keys from ARGV, so every
// queue key carries the same {prefix queue} hash tag and lands in one
// cluster slot. Dedup entries are touched one key per script and stay
// untagged.

// queueKey is the sorted set of message ids scored by visible-at.
func (b *Broker) queueKey() string { return "{" + b.prefix + "queue}" }

// seqKey is the message id counter.
func (b *Broker) seqKey() string { return b.queueKey() + ":seq" }

// messagePrefix prefixes the per-message hash: {prefix queue}:msg:{mid}.
func (b *Broker) messagePrefix() string { return b.queueKey() + ":msg:" }

// dedupKey is the hash of a fingerprint entry: {prefix}dedup:{fp}.
func (b *Broker) dedupKey(fp string) string { return b.prefix + "dedup:" + fp }

// hashTag returns the part of key Redis Cluster hashes to pick a slot.
func hashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}
