package redis

// Key layout. Objects live under prefixObject + store key; zKeys is a sorted
// set of every store key (score 0) used for ordered prefix scans by lex range.
const (
	prefixObject = "paysim:obj:"
	zKeys        = "paysim:z:keys"
)

// objectKey returns the Redis key holding the object stored under key.
func objectKey(key string) string {
	return prefixObject + key
}

// lexRange returns the ZRANGEBYLEX bounds covering every member starting
// with prefix.
func lexRange(prefix string) (lo, hi string) {
	if prefix == "" {
		return "-", "+"
	}
	return "[" + prefix, "[" + prefix + "\xff"
}
