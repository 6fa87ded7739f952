package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"BackpropDev/pkg/backprop"
	"BackpropDev/pkg/config"
	"BackpropDev/pkg/dataProcess"
	"BackpropDev/pkg/network"
	"BackpropDev/pkg/training"
)

func main() {
	configPath := flag.String("config", "", "训练配置文件（YAML/JSON），为空时使用默认配置")
	dataPath := flag.String("data", "", "字符画格式的数据集，.gz 文件自动解压")
	idxImages := flag.String("idx-images", "", "IDX 格式的图像文件")
	idxLabels := flag.String("idx-labels", "", "IDX 格式的标签文件")
	numClasses := flag.Int("classes", 10, "数据集的类别数")
	hidden := flag.Int("hidden", 45, "未给出配置文件时，数据集网络的隐藏层大小")
	loadPath := flag.String("load", "", "从文件加载已训练的模型")
	savePath := flag.String("save", "", "训练后保存模型的文件")
	every := flag.Int("progress", 100, "每多少轮打印一次损失")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
	}

	dataset, err := loadDataset(*dataPath, *idxImages, *idxLabels)
	if err != nil {
		log.Fatalf("加载数据集失败: %v", err)
	}
	if dataset != nil && *configPath == "" {
		// 与数据集匹配的默认网络：输入宽度 -> 隐藏层 -> 类别数
		cfg.Layers = []int{len(dataset.Images[0]), *hidden, *numClasses}
		cfg.LearningRate = 0.1
		cfg.MaxEpochs = 500
	}

	algo, err := newAlgorithm(cfg, *loadPath)
	if err != nil {
		log.Fatalf("创建训练器失败: %v", err)
	}
	fmt.Printf("网络结构: %v\n", algo.Network())

	sup := cfg.Supervised()
	sup.Progress = training.PrintProgress(*every)

	if dataset == nil {
		trainXOR(algo, sup)
	} else {
		trainDataset(algo, dataset, *numClasses, sup)
	}

	if *savePath != "" {
		if err := network.SaveModel(algo.Network(), *savePath); err != nil {
			log.Fatalf("保存模型失败: %v", err)
		}
		fmt.Printf("模型已保存到 %s\n", *savePath)
	}
}

func loadDataset(dataPath, idxImages, idxLabels string) (*dataProcess.Dataset, error) {
	var dataset *dataProcess.Dataset
	var err error
	switch {
	case dataPath != "":
		dataset, err = dataProcess.LoadDataset(dataPath)
	case idxImages != "" || idxLabels != "":
		dataset, err = dataProcess.LoadIDX(idxImages, idxLabels)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if dataset.Len() == 0 {
		return nil, network.ErrEmptyDataset
	}
	fmt.Printf("数据集包含 %d 个样本\n", dataset.Len())
	return dataset, nil
}

func newAlgorithm(cfg *config.TrainingConfig, loadPath string) (*backprop.Algorithm, error) {
	if loadPath == "" {
		return cfg.NewAlgorithm()
	}
	nn, err := network.LoadModel(loadPath)
	if err != nil {
		return nil, err
	}
	mode, err := cfg.TrainingMode()
	if err != nil {
		return nil, err
	}
	fmt.Printf("已从 %s 加载模型\n", loadPath)
	return backprop.New(nn, mode)
}

// trainXOR 在异或数据集上训练并打印训练前后的输出
func trainXOR(algo *backprop.Algorithm, sup *training.SupervisedConfig) {
	data := dataProcess.XOR()
	nn := algo.Network()
	show := func() {
		for _, s := range data {
			out, err := nn.Feed(s.Input)
			if err != nil {
				log.Fatalf("前向传播失败: %v", err)
			}
			fmt.Printf("%v -> 期望 %v, 输出 %.4f\n", s.Input, s.Expected, out)
		}
	}

	fmt.Println("训练前:")
	show()
	fmt.Println("\n开始训练...")
	res, err := training.Run(context.Background(), algo, data, sup)
	if err != nil {
		log.Fatalf("训练失败: %v", err)
	}
	fmt.Printf("收敛: %t\n轮数: %d\n误差: %.6f\n\n训练后:\n", res.Converged, res.Epochs, res.Error)
	show()
}

// trainDataset 在数据集上训练并展示前几个样本的预测结果
func trainDataset(algo *backprop.Algorithm, dataset *dataProcess.Dataset, numClasses int, sup *training.SupervisedConfig) {
	fmt.Println("开始训练模型...")
	if _, err := training.TrainModel(algo, dataset, dataset, numClasses, sup); err != nil {
		log.Fatalf("训练失败: %v", err)
	}

	fmt.Println("\n样本预测结果:")
	for i := 0; i < dataset.Len() && i < 10; i++ {
		prediction, err := algo.Network().Predict(dataset.Images[i])
		if err != nil {
			log.Fatalf("预测失败: %v", err)
		}
		fmt.Printf("样本 %d 的预测类别：%d, 真实类别：%s\n", i+1, prediction, dataset.Labels[i])
	}
}
