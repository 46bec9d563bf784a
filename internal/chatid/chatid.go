// Package chatid derives conversation identifiers for 1:1 threads.
package chatid

// For returns the identifier of the conversation between the two given
// user identities. The result is independent of argument order, so both
// participants derive the same id without a lookup round-trip.
//
// Identities are joined with "_" after lexicographic ordering. Two pairs
// can only collide if an identity itself contains the separator; uids
// issued by the identity service never do.
func For(a, b string) string {
	if a < b {
		return a + "_" + b
	}
	return b + "_" + a
}
