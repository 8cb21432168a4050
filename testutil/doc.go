/*
Package testutil 提供 Agora 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup 防止泄漏
  - 数据库: NewDB / NewStore 基于 glebarez/sqlite 的内存数据库，已完成迁移
  - 数据准备: SeedPersona / AppendEntry
  - 异步断言: AssertEventuallyTrue / WaitFor
  - Mock: mocks.MockProvider 可按模型脚本化的 llm.Provider
*/
package testutil
