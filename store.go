package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/npat-efault/crc16"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrConfigNotFound = errors.New("config not found")
	ErrConfigCorrupt  = errors.New("config corrupt")
)

const (
	stateVersion = uint8(1)
	stateBucket  = "ventcontrol"
	stateKey     = "state"
)

// configRecord is the on-disk layout of Config, followed by a CRC16 of
// these bytes.
type configRecord struct {
	Version           uint8
	FanTargetMode     uint8
	FanTimeoutMinutes uint8
	FanDutyCycle      uint8
	HrvTargetMode     uint8
}

var configRecordSize = binary.Size(configRecord{})

var crcConfig = &crc16.Conf{Poly: 0x8005, BitRev: true, IniVal: 0x0, FinVal: 0x0, BigEnd: false}

func encodeConfig(cfg Config) []byte {
	rec := configRecord{
		Version:           stateVersion,
		FanTargetMode:     uint8(cfg.FanTargetMode),
		FanTimeoutMinutes: cfg.FanTimeoutMinutes,
		FanDutyCycle:      cfg.FanDutyCycle,
		HrvTargetMode:     uint8(cfg.HrvTargetMode),
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, rec)
	binary.Write(buf, binary.BigEndian, crc16.Checksum(crcConfig, buf.Bytes()))
	return buf.Bytes()
}

func decodeConfig(data []byte) (Config, error) {
	if len(data) != configRecordSize+2 {
		return Config{}, fmt.Errorf("%w: size %d, want %d", ErrConfigCorrupt, len(data), configRecordSize+2)
	}

	body := data[:configRecordSize]
	want := binary.BigEndian.Uint16(data[configRecordSize:])
	if got := crc16.Checksum(crcConfig, body); got != want {
		return Config{}, fmt.Errorf("%w: checksum 0x%04x, want 0x%04x", ErrConfigCorrupt, got, want)
	}

	rec := configRecord{}
	if err := binary.Read(bytes.NewReader(body), binary.BigEndian, &rec); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigCorrupt, err)
	}
	if rec.Version != stateVersion {
		return Config{}, fmt.Errorf("%w: version %d, want %d", ErrConfigCorrupt, rec.Version, stateVersion)
	}

	cfg := Config{
		FanTargetMode:     Mode(rec.FanTargetMode),
		FanTimeoutMinutes: rec.FanTimeoutMinutes,
		FanDutyCycle:      rec.FanDutyCycle,
		HrvTargetMode:     Mode(rec.HrvTargetMode),
	}
	return cfg.sanitize(), nil
}

// boltStore keeps the configuration blob in a bbolt database.
type boltStore struct {
	db *bolt.DB
}

func openBoltStore(path string) (*boltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(stateBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", stateBucket, err)
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) Load() (Config, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(stateBucket)).Get([]byte(stateKey))
		if v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return Config{}, fmt.Errorf("read state: %w", err)
	}
	if data == nil {
		return Config{}, ErrConfigNotFound
	}
	return decodeConfig(data)
}

func (s *boltStore) Save(cfg Config) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(stateBucket)).Put([]byte(stateKey), encodeConfig(cfg))
	})
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
