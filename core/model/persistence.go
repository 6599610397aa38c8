package model

import (
	"encoding/json"
	"io"
	"os"

	"github.com/golang/snappy"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// SaveModelToWriter はモデルをsnappy圧縮JSONとしてio.Writerに保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	sw := snappy.NewBufferedWriter(w)
	if err := json.NewEncoder(sw).Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	if err := sw.Close(); err != nil {
		return errors.Wrap(err, "failed to flush compressed model")
	}
	return nil
}

// LoadModelFromReader はsnappy圧縮JSONをio.Readerから読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := json.NewDecoder(snappy.NewReader(r)).Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}

// SaveModel はモデルを同じディレクトリの一時ファイルに書き込み、最終的な
// ファイル名へリネームする。読み手が書き込み途中のファイルを見ることはない。
//
// 使用例:
//
//	err := model.SaveModel(bundle, "models/model_1.0.0.json.sz")
func SaveModel(model interface{}, filename string) error {
	tmp := filename + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	if err := SaveModelToWriter(model, file); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to close file")
	}
	return errors.Wrap(os.Rename(tmp, filename), "failed to move model into place")
}

// LoadModel はファイルからモデルを読み込む
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("model artifact", filename)
		}
		return errors.Wrap(err, "failed to open file")
	}
	defer file.Close()
	return LoadModelFromReader(model, file)
}
