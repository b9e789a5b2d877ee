package storage

import (
	"GuardWatch/storage/database"
	"GuardWatch/storage/mq"
	"GuardWatch/storage/redis"
)

// Options 各进程按需初始化存储
type Options struct {
	Database bool
	Redis    bool
	RabbitMQ bool
}

func Init(opts Options) error {
	if opts.Database {
		if err := database.Init(); err != nil {
			return err
		}
	}

	if opts.Redis {
		if err := redis.Init(); err != nil {
			return err
		}
	}

	if opts.RabbitMQ {
		if err := mq.Init(); err != nil {
			return err
		}
	}

	return nil
}
