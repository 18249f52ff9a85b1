package storage

import "errors"

// ErrConcurrentUpdate 乐观锁冲突：运行实例已被其他调用修改
var ErrConcurrentUpdate = errors.New("并发更新冲突")
