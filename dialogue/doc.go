// Package dialogue 实现圆桌对话的回合调度核心: 会话调度器, 回合执行器,
// 参与者生命周期, 转写压缩与用量核算.
//
// 每个会话同一时刻只有一个回合循环; 会话内回合严格串行, 因为每个回合的
// 提示依赖此前全部回合产出的转写. 会话之间的循环互不相关, 唯一共享的
// 可变资源是 cancel.Registry.
package dialogue
