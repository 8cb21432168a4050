// Package config 提供 Agora 的配置管理功能。
//
// 配置来源依次为内置默认值、YAML 文件、.env 文件与 AGORA_ 前缀的环境变量，
// 后者覆盖前者。种子人格与扩展模型表只能通过 YAML 配置。
package config
