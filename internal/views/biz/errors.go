package biz

import "errors"

var (
	// ErrSearchIDRequired 搜索ID必填
	ErrSearchIDRequired = errors.New("search id is required")

	// ErrSearchNotFound 搜索没有可用的结果快照
	ErrSearchNotFound = errors.New("search result not found")

	// ErrQueryNotFound 快照中不存在该查询
	ErrQueryNotFound = errors.New("query not found in search result")

	// ErrStaleGeneration 结果属于已被取代的执行
	ErrStaleGeneration = errors.New("search generation has been superseded")

	// ErrInvalidGeneration 该代次从未分配
	ErrInvalidGeneration = errors.New("search generation was never started")

	// ErrSnapshotNotFound is returned by a ResultRepo with no stored snapshot.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
