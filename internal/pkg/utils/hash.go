package utils

import "github.com/cespare/xxhash/v2"

// TokenHash 计算 token 地址的稳定 hash，用于 Kafka 分区
func TokenHash(token string) uint64 {
	return xxhash.Sum64String(token)
}

// PartitionOf 根据 hash 计算分区，partitions <= 1 时返回 -1 由 producer 自行选择
func PartitionOf(hash uint64, partitions int) int32 {
	if partitions <= 1 {
		return -1
	}
	return int32(hash % uint64(partitions))
}
