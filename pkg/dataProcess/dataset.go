package dataProcess

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"strconv"
	"strings"

	"BackpropDev/pkg/backprop"
	"BackpropDev/pkg/network"

	"github.com/pkg/errors"
)

/*
该文件实现数据集的加载
支持两种格式：字符画格式（见 glyph.go）和 IDX 格式（MNIST），文件名以 .gz 结尾时自动解压
*/
type Dataset struct {
	Labels []string
	Images [][]float64
}

// Len 样本数量
func (d *Dataset) Len() int {
	return len(d.Images)
}

// Validate 检查标签与图像一一对应，且每个图像宽度为 inputWidth
func (d *Dataset) Validate(inputWidth int) error {
	if len(d.Labels) != len(d.Images) {
		return errors.Wrapf(network.ErrShapeMismatch, "标签 %d 个，图像 %d 个", len(d.Labels), len(d.Images))
	}
	for i, img := range d.Images {
		if len(img) != inputWidth {
			return errors.Wrapf(network.ErrShapeMismatch, "第 %d 个图像（标签 %q）宽度 %d，需要 %d", i, d.Labels[i], len(img), inputWidth)
		}
	}
	return nil
}

// ClassIndex 把数字标签转换为类别下标
func ClassIndex(label string, numClasses int) (int, error) {
	class, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil {
		return 0, errors.Wrapf(network.ErrConfiguration, "标签 %q 不是数字", label)
	}
	if class < 0 || class >= numClasses {
		return 0, errors.Wrapf(network.ErrShapeMismatch, "标签 %d 不在 [0, %d) 内", class, numClasses)
	}
	return class, nil
}

// XOR 异或数据集
func XOR() backprop.Samples {
	return backprop.Samples{
		{Input: []float64{1, 1}, Expected: []float64{0}},
		{Input: []float64{1, 0}, Expected: []float64{1}},
		{Input: []float64{0, 1}, Expected: []float64{1}},
		{Input: []float64{0, 0}, Expected: []float64{0}},
	}
}

// open 打开文件，.gz 文件返回解压后的读取器
func open(filename string) (io.ReadCloser, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "无法打开文件 %s", filename)
	}
	if !strings.HasSuffix(filename, ".gz") {
		return file, nil
	}
	reader, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "无法解压缩文件 %s", filename)
	}
	return &gzipFile{Reader: reader, file: file}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	g.Reader.Close()
	return g.file.Close()
}

// LoadDataset 加载字符画格式的数据集
func LoadDataset(filename string) (*Dataset, error) {
	reader, err := open(filename)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	dataset, err := ReadDataset(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "读取数据集 %s 失败", filename)
	}
	return dataset, nil
}

// LoadImages 从 IDX 文件加载图像数据，像素值归一化到 [0, 1]
func LoadImages(filename string) ([][]float64, error) {
	reader, err := open(filename)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	// 读取 IDX 头信息（魔数、维度等）
	var header [4]int32
	if err := binary.Read(reader, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "读取图像文件头失败")
	}
	magicNumber, numImages, numRows, numCols := header[0], header[1], header[2], header[3]
	if magicNumber != 2051 {
		return nil, errors.Errorf("文件格式不正确（魔数 %d 不匹配）", magicNumber)
	}
	if numImages < 0 || numRows < 0 || numCols < 0 {
		return nil, errors.Errorf("文件头损坏：图像数 %d，尺寸 %dx%d", numImages, numRows, numCols)
	}

	images := make([][]float64, numImages)
	pixels := make([]byte, numRows*numCols)
	for i := range images {
		if _, err := io.ReadFull(reader, pixels); err != nil {
			return nil, errors.Wrapf(err, "读取第 %d 个图像失败", i)
		}
		img := make([]float64, len(pixels))
		for j, p := range pixels {
			img[j] = float64(p) / 255.0
		}
		images[i] = img
	}
	return images, nil
}

// LoadLabels 从 IDX 文件加载标签数据
func LoadLabels(filename string) ([]string, error) {
	reader, err := open(filename)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	// 魔数用于验证文件的格式是否正确
	var magicNumber, numItems int32
	if err := binary.Read(reader, binary.BigEndian, &magicNumber); err != nil {
		return nil, errors.Wrap(err, "读取魔数失败")
	}
	if magicNumber != 2049 {
		return nil, errors.Errorf("文件格式不正确（魔数 %d 不匹配）", magicNumber)
	}
	if err := binary.Read(reader, binary.BigEndian, &numItems); err != nil {
		return nil, errors.Wrap(err, "读取标签数量失败")
	}
	if numItems < 0 {
		return nil, errors.Errorf("文件头损坏：标签数 %d", numItems)
	}

	raw := make([]byte, numItems)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return nil, errors.Wrap(err, "读取标签数据失败")
	}
	labels := make([]string, len(raw))
	for i, l := range raw {
		labels[i] = strconv.Itoa(int(l))
	}
	return labels, nil
}

// LoadIDX 加载一对 IDX 图像/标签文件
func LoadIDX(imagesFile, labelsFile string) (*Dataset, error) {
	images, err := LoadImages(imagesFile)
	if err != nil {
		return nil, errors.Wrap(err, "加载图像数据失败")
	}
	labels, err := LoadLabels(labelsFile)
	if err != nil {
		return nil, errors.Wrap(err, "加载标签数据失败")
	}
	if len(images) != len(labels) {
		return nil, errors.Wrapf(network.ErrShapeMismatch, "图像 %d 个，标签 %d 个", len(images), len(labels))
	}
	return &Dataset{Images: images, Labels: labels}, nil
}
