package dataProcess

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

/*
字符画格式：
  一行标签，紧接着若干行字符画，以空行结束
  字符画中空格表示1，其他字符表示0，各行按顺序拼接成一个输入向量
标签之前的空行会被忽略
*/

// ParseGlyph 把字符画的各行转换为输入向量
func ParseGlyph(lines []string) []float64 {
	var data []float64
	for _, line := range lines {
		for _, c := range strings.TrimRight(line, "\r\n") {
			if c == ' ' {
				data = append(data, 1)
			} else {
				data = append(data, 0)
			}
		}
	}
	return data
}

// ReadDataset 读取字符画格式的数据集
// 字符画各行只去掉行尾的 \r，行首行尾的空格保留并计为1。
// 逐行去除首尾空白的读取方式在这类行上会得到更短的向量，两者结果不同。
// 只含空白的行视为空行，表示字符画结束。
func ReadDataset(r io.Reader) (*Dataset, error) {
	dataset := &Dataset{}
	scanner := bufio.NewScanner(r)

	label := ""
	var glyph []string
	lineNo := 0
	flush := func() error {
		if len(glyph) == 0 {
			return errors.Errorf("第 %d 行：标签 %q 之后没有字符画", lineNo, label)
		}
		dataset.Labels = append(dataset.Labels, label)
		dataset.Images = append(dataset.Images, ParseGlyph(glyph))
		label, glyph = "", nil
		return nil
	}

	inGlyph := false
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		blank := strings.TrimSpace(line) == ""
		switch {
		case !inGlyph && blank:
			continue
		case !inGlyph:
			label = strings.TrimSpace(line)
			inGlyph = true
		case blank:
			if err := flush(); err != nil {
				return nil, err
			}
			inGlyph = false
		default:
			glyph = append(glyph, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "读取数据失败")
	}
	if inGlyph {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return dataset, nil
}
