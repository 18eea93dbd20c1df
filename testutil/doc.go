// =============================================================================
// 🧪 测试辅助
// =============================================================================
// 提供通用测试上下文与条件等待辅助；领域模拟见 testutil/mocks。
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil
