package chat

const roomSeparator = "_"

// RoomID returns the canonical room shared by a and b. The result does not
// depend on argument order and carries no salt, so it is safe to persist.
func RoomID(a, b Identity) string {
	ka, kb := a.Key(), b.Key()
	if kb < ka {
		ka, kb = kb, ka
	}
	return ka + roomSeparator + kb
}

// ResolveRoom is RoomID for callers holding raw id/kind pairs.
func ResolveRoom(idA string, kindA Kind, idB string, kindB Kind) string {
	return RoomID(Identity{ID: idA, Kind: kindA}, Identity{ID: idB, Kind: kindB})
}
