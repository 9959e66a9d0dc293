package tokenizer

// Entry 是一条轻量级的角色标注文本, 由 tokenizer 包使用
// 以避免与 llm 包的循环依赖.
type Entry struct {
	Role    string
	Content string
}

// Tokenizer 是统一的 Token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) int

	// CountEntry 返回单条消息的 token 数, 含角色标记等开销.
	CountEntry(e Entry) int

	// CountEntries 返回消息列表的总 token 数.
	CountEntries(entries []Entry) int

	// Name 返回分词器的名称.
	Name() string
}
