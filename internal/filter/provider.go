package filter

// Ignore reports whether documents from a provider should be skipped.
//
// When included is non-empty it is the only list consulted: providers
// outside it are ignored. The excluded list applies only when included
// is empty.
func Ignore(provider string, included, excluded []string) bool {
	if len(included) > 0 {
		return !contains(included, provider)
	}
	return contains(excluded, provider)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
