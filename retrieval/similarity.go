package retrieval

// similarityRatio measures how alike a and b are as 2*M/T, where T is the
// combined length and M the number of characters in matching blocks. Blocks
// are found by taking the longest common substring and recursing on the text
// to either side of it.
func similarityRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingChars(ra, rb)) / float64(total)
}

func matchingChars(a, b []rune) int {
	i, j, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	return size + matchingChars(a[:i], b[:j]) + matchingChars(a[i+size:], b[j+size:])
}

// longestCommonBlock returns the earliest longest common substring of a and b.
func longestCommonBlock(a, b []rune) (int, int, int) {
	bestI, bestJ, bestSize := 0, 0, 0
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > bestSize {
					bestSize = curr[j]
					bestI, bestJ = i-bestSize, j-bestSize
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return bestI, bestJ, bestSize
}
