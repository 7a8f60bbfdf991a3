package rhyme

// CacheLen returns the number of memoized rhyme keys.
func CacheLen(m *Matcher) int {
	n := 0
	m.cache.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
