// Package llm 定义统一的生成能力边界: Provider 接口, 请求/响应类型
// 与线程安全的 Provider 注册表. 调度器只依赖接口, 具体后端由
// llm/providers 子包实现.
package llm
