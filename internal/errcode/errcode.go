package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：校验失败，用户修正输入后可重试
// - 5xxx：远端调用失败（数据库、存储、渲染），需要中断流程
const (
	OK               = 0
	ValidationFailed = 4000
	ResourceMissing  = 4004
	SystemError      = 5000
)
