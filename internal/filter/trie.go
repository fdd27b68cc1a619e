package filter

// trieNode is one node of a term trie.
type trieNode struct {
	children map[rune]*trieNode
	terminal bool
}

// Trie is a term trie. Built once at startup and read-only afterwards, so it
// is safe to share across concurrent scans without locking.
type Trie struct {
	root *trieNode
	size int
}

// NewTrie creates an empty trie.
func NewTrie() *Trie {
	return &Trie{root: &trieNode{children: make(map[rune]*trieNode)}}
}

// Insert adds a term.
func (t *Trie) Insert(term string) {
	node := t.root
	for _, r := range term {
		child := node.children[r]
		if child == nil {
			child = &trieNode{children: make(map[rune]*trieNode)}
			node.children[r] = child
		}
		node = child
	}
	if !node.terminal {
		t.size++
	}
	node.terminal = true
}

// Size returns the number of distinct terms.
func (t *Trie) Size() int {
	return t.size
}

// LongestMatchAt walks the trie along text starting at pos and returns the
// length in runes of the longest terminal match, or 0.
func (t *Trie) LongestMatchAt(text []rune, pos int) int {
	node := t.root
	longest := 0
	for i := pos; i < len(text); i++ {
		node = node.children[text[i]]
		if node == nil {
			break
		}
		if node.terminal {
			longest = i - pos + 1
		}
	}
	return longest
}
