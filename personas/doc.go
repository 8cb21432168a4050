// Package personas 管理人格配置：创建、部分更新、停用与种子数据。
package personas
