// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数：上下文、内存数据库、异步断言
//
// 使用方法:
//
//	st := testutil.NewStore(t)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/agora/store"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🗄️ 数据库辅助
// =============================================================================

// NewDB 打开已迁移的内存 SQLite 数据库。
// 单连接保证 :memory: 数据库在所有 goroutine 间共享。
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, store.InitDatabase(db))
	return db
}

// NewStore 返回基于内存数据库的 Store
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	return store.New(NewDB(t))
}

// SeedPersona 写入一个启用中的人格
func SeedPersona(t testing.TB, st *store.Store, name, model string) *store.Persona {
	t.Helper()

	p := &store.Persona{
		Name:        name,
		Description: name + " persona",
		Prompt:      "Be " + name + ".",
		Color:       "#336699",
		Model:       model,
		Active:      true,
		Multiplier:  1.0,
	}
	require.NoError(t, st.CreatePersona(context.Background(), p))
	return p
}

// AppendEntry 追加一条人类发言
func AppendEntry(t testing.TB, st *store.Store, roomID uint, speaker, content string) *store.Entry {
	t.Helper()

	e := &store.Entry{RoomID: roomID, Speaker: speaker, Content: content, Origin: store.OriginHuman}
	require.NoError(t, st.AppendEntry(context.Background(), e))
	return e
}

// =============================================================================
// ⏱️ 异步断言
// =============================================================================

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// =============================================================================
// 📦 JSON 辅助
// =============================================================================

// MustJSON 序列化，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
