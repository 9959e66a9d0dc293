// Package tokenizer 提供统一的 Token 计数接口: CJK 感知的字符估算器与
// 可选的 tiktoken 精确计数, 用于上下文预算与用量核算.
// 估算是启发式而非精确分词; 需要其他公式时实现 Tokenizer 接口即可.
package tokenizer
