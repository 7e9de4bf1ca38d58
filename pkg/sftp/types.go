package sftp

const (
	DefaultConcurrentFiles = 5
	DefaultThreadsPerFile  = 64
	DefaultChunkSize       = 32 * 1024 // 32KB SFTP 默认包大小
)

// TransferConfig 上传参数，同时作为配置文件 ssh.sftp 段
// 零值字段表示使用默认值
type TransferConfig struct {
	// ConcurrentFiles 目录上传时同时传输的文件数
	ConcurrentFiles int `yaml:"concurrent_files,omitempty" validate:"gte=0"`
	// ThreadsPerFile 大文件分块并发数
	ThreadsPerFile int `yaml:"threads_per_file,omitempty" validate:"gte=0"`
	// ChunkSize 分块字节数，不超过 SFTP 单包上限
	ChunkSize int64 `yaml:"chunk_size,omitempty" validate:"gte=0,lte=262144"`
}

// DefaultTransferConfig 节点上传使用的默认参数
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		ConcurrentFiles: DefaultConcurrentFiles,
		ThreadsPerFile:  DefaultThreadsPerFile,
		ChunkSize:       DefaultChunkSize,
	}
}

// Options 转换为 Client 的配置函数，未设置的字段不生成
func (tc TransferConfig) Options() []Option {
	var opts []Option
	if tc.ConcurrentFiles > 0 {
		opts = append(opts, WithConcurrentFiles(tc.ConcurrentFiles))
	}
	if tc.ThreadsPerFile > 0 {
		opts = append(opts, WithThreadsPerFile(tc.ThreadsPerFile))
	}
	if tc.ChunkSize > 0 {
		opts = append(opts, WithChunkSize(tc.ChunkSize))
	}
	return opts
}

// ProgressCallback 上传进度，n 为本次写入远端的字节数，会被多个协程并发调用
type ProgressCallback func(n int)
