package utils

import "github.com/samber/lo"

// Find 按ID查找数据
// 功能：ids为空时返回全部数据all；否则按ids顺序返回index中存在的数据，以及不存在的ID
func Find[K comparable, T any](index map[K]T, all []T, ids []K) (found []T, missing []K) {
	if len(ids) == 0 {
		return all, nil
	}
	found = lo.FilterMap(ids, func(id K, _ int) (T, bool) {
		v, ok := index[id]
		return v, ok
	})
	missing = lo.Reject(ids, func(id K, _ int) bool {
		_, ok := index[id]
		return ok
	})
	return found, missing
}
